package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/capsule/internal/transport"
)

func TestGopher_Fetch(t *testing.T) {
	t.Parallel()

	requests := make(chan string, 4)
	port := tcpServer(t, func(req string, _ *bufio.Reader, conn net.Conn) {
		requests <- req
		switch {
		case strings.HasPrefix(req, "/latin"):
			fmt.Fprint(conn, "caf\xe9")
		case strings.HasPrefix(req, "/bin"):
			fmt.Fprint(conn, "\xff\xfe\x00")
		default:
			fmt.Fprint(conn, "iAbout\tfake\t(NULL)\t0\r\n.\r\n")
		}
	})
	base := "gopher://127.0.0.1:" + port
	g := NewGopher(transport.NewDirect())

	t.Run("menu", func(t *testing.T) {
		resp, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/1/menu"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if got := <-requests; got != "/menu" {
			t.Errorf("selector = %q, want /menu", got)
		}
		if resp.Mime != "text/gopher" {
			t.Errorf("Mime = %q", resp.Mime)
		}
	})

	t.Run("search query is tab separated", func(t *testing.T) {
		if _, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/7/search?golang"), testOpts); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if got := <-requests; got != "/search\tgolang" {
			t.Errorf("request = %q", got)
		}
	})

	t.Run("latin1 text is transcoded", func(t *testing.T) {
		resp, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/0/latin"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		<-requests
		if string(resp.Body) != "café" {
			t.Errorf("Body = %q", resp.Body)
		}
		if resp.Mime != "text/gemini" {
			t.Errorf("Mime = %q", resp.Mime)
		}
	})

	t.Run("binary items are kept raw", func(t *testing.T) {
		resp, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/9/bin"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		<-requests
		if string(resp.Body) != "\xff\xfe\x00" {
			t.Errorf("Body = %q", resp.Body)
		}
	})
}

func TestFinger_Fetch(t *testing.T) {
	t.Parallel()

	port := tcpServer(t, func(req string, _ *bufio.Reader, conn net.Conn) {
		fmt.Fprintf(conn, "Login: %s\n", req)
	})
	resp, err := NewFinger(transport.NewDirect()).Fetch(context.Background(),
		newParser(t).MustParse("finger://127.0.0.1:"+port+"/alice"), testOpts)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "Login: alice\n" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Mime != "text/plain" {
		t.Errorf("Mime = %q", resp.Mime)
	}
}

func TestSpartan_Fetch(t *testing.T) {
	t.Parallel()

	port := tcpServer(t, func(req string, r *bufio.Reader, conn net.Conn) {
		fields := strings.Fields(req)
		if len(fields) != 3 {
			fmt.Fprint(conn, "4 bad request\r\n")
			return
		}
		n, _ := strconv.Atoi(fields[2])
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return
		}
		switch fields[1] {
		case "/":
			fmt.Fprintf(conn, "2 text/gemini\r\nhost=%s", fields[0])
		case "/echo":
			fmt.Fprintf(conn, "2 text/plain\r\n%s", data)
		case "/moved":
			fmt.Fprint(conn, "3 /\r\n")
		case "/loop":
			fmt.Fprint(conn, "3 /loop2\r\n")
		case "/loop2":
			fmt.Fprint(conn, "3 /loop\r\n")
		default:
			fmt.Fprint(conn, "4 not found\r\n")
		}
	})
	base := "spartan://127.0.0.1:" + port
	s := NewSpartan(transport.NewDirect())

	t.Run("root", func(t *testing.T) {
		t.Parallel()
		resp, err := s.Fetch(context.Background(), newParser(t).MustParse(base), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(resp.Body) != "host=127.0.0.1" {
			t.Errorf("Body = %q", resp.Body)
		}
	})

	t.Run("query is sent as data", func(t *testing.T) {
		t.Parallel()
		resp, err := s.Fetch(context.Background(), newParser(t).MustParse(base+"/echo?hello%20there"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(resp.Body) != "hello there" {
			t.Errorf("Body = %q", resp.Body)
		}
	})

	t.Run("redirect is followed once", func(t *testing.T) {
		t.Parallel()
		resp, err := s.Fetch(context.Background(), newParser(t).MustParse(base+"/moved"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if resp.Locator.URL() != base+"/" {
			t.Errorf("final URL = %q", resp.Locator.URL())
		}
	})

	t.Run("second redirect fails", func(t *testing.T) {
		t.Parallel()
		_, err := s.Fetch(context.Background(), newParser(t).MustParse(base+"/loop"), testOpts)
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("error code", func(t *testing.T) {
		t.Parallel()
		_, err := s.Fetch(context.Background(), newParser(t).MustParse(base+"/missing"), testOpts)
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
		if perr.Error() != "Spartan code 4: Error not found" {
			t.Errorf("Error() = %q", perr.Error())
		}
	})
}
