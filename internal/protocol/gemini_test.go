package protocol

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/capsule/internal/prompt"
	"github.com/nao1215/capsule/internal/redirect"
	"github.com/nao1215/capsule/internal/transport"
)

// answeringPrompter is an interactive prompter with canned answers.
type answeringPrompter struct {
	mu     sync.Mutex
	input  string
	inputs []bool
}

func (a *answeringPrompter) Confirm(string, bool) (bool, error)   { return true, nil }
func (a *answeringPrompter) Choose(string, []string) (int, error) { return 0, nil }
func (a *answeringPrompter) Interactive() bool                    { return true }
func (a *answeringPrompter) Input(_ string, sensitive bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, sensitive)
	return a.input, nil
}

type trustFunc func(ctx context.Context, address, hostname string, der []byte) error

func (f trustFunc) Validate(ctx context.Context, address, hostname string, der []byte) error {
	return f(ctx, address, hostname, der)
}

// fakeCerts activates a certificate when asked to handle a request.
type fakeCerts struct {
	mu       sync.Mutex
	t        *testing.T
	cert     *tls.Certificate
	handled  int
	recorded []string
}

func (f *fakeCerts) Certificate() (*tls.Certificate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cert, f.cert != nil
}

func (f *fakeCerts) RecordHandshake(_ context.Context, host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, host)
	return nil
}

func (f *fakeCerts) HandleRequest(context.Context, string, string, string) error {
	cert, _ := selfSigned(f.t, "127.0.0.1")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled++
	f.cert = &cert
	return nil
}

var testOpts = FetchOptions{Timeout: 5 * time.Second}

func TestGemini_Success(t *testing.T) {
	t.Parallel()

	port, _ := tlsServer(t, func(req string, _ *bufio.Reader, conn net.Conn) {
		fmt.Fprintf(conn, "20 text/gemini\r\n# Echo\n%s\n", req)
	})
	loc := newParser(t).MustParse("gemini://127.0.0.1:" + port + "/hello.gmi")

	resp, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), loc, testOpts)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.Mime != "text/gemini" {
		t.Errorf("Mime = %q", resp.Mime)
	}
	if !strings.Contains(string(resp.Body), "gemini://127.0.0.1:"+port+"/hello.gmi") {
		t.Errorf("request line was not the URL: %q", resp.Body)
	}
	if resp.Locator != loc {
		t.Error("expected the requested locator to be returned")
	}
}

func TestGemini_DefaultMime(t *testing.T) {
	t.Parallel()

	port, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
		fmt.Fprint(conn, "20\r\nhello")
	})
	loc := newParser(t).MustParse("gemini://127.0.0.1:" + port + "/")

	resp, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), loc, testOpts)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.Mime != DefaultGeminiMime {
		t.Errorf("Mime = %q, want %q", resp.Mime, DefaultGeminiMime)
	}
}

func TestGemini_Charset(t *testing.T) {
	t.Parallel()

	t.Run("latin1 is decoded", func(t *testing.T) {
		t.Parallel()
		port, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
			fmt.Fprint(conn, "20 text/plain; charset=iso-8859-1\r\ncaf\xe9")
		})
		loc := newParser(t).MustParse("gemini://127.0.0.1:" + port + "/")
		resp, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), loc, testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(resp.Body) != "café" {
			t.Errorf("Body = %q, want café", resp.Body)
		}
	})

	t.Run("unknown charset is a protocol error", func(t *testing.T) {
		t.Parallel()
		port, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
			fmt.Fprint(conn, "20 text/plain; charset=klingon\r\nqapla")
		})
		loc := newParser(t).MustParse("gemini://127.0.0.1:" + port + "/")
		_, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), loc, testOpts)
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})
}

func TestGemini_ErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		wantStatus string
		wantErr    error
	}{
		{name: "not found", header: "51 Not found\r\n", wantStatus: "51"},
		{name: "temporary failure", header: "40 Busy\r\n", wantStatus: "40"},
		{name: "undefined status", header: "99 What\r\n", wantStatus: "99"},
		{name: "garbage header", header: "hello world\r\n", wantErr: ErrInvalidHeader},
		{name: "meta too long", header: "20 " + strings.Repeat("a", 1030) + "\r\n", wantErr: ErrInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			port, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
				fmt.Fprint(conn, tt.header)
			})
			loc := newParser(t).MustParse("gemini://127.0.0.1:" + port + "/")
			_, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), loc, testOpts)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
			if perr.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", perr.Status, tt.wantStatus)
			}
			if KindOf(err) != KindProtocol {
				t.Errorf("KindOf() = %v", KindOf(err))
			}
		})
	}
}

func TestGemini_Redirects(t *testing.T) {
	t.Parallel()

	port, _ := tlsServer(t, func(req string, _ *bufio.Reader, conn net.Conn) {
		switch {
		case strings.HasSuffix(req, "/old"):
			fmt.Fprint(conn, "31 /new\r\n")
		case strings.HasSuffix(req, "/new"):
			fmt.Fprint(conn, "20 text/gemini\r\nnew home")
		case strings.HasSuffix(req, "/a"):
			fmt.Fprint(conn, "30 /b\r\n")
		case strings.HasSuffix(req, "/b"):
			fmt.Fprint(conn, "30 /a\r\n")
		case strings.HasSuffix(req, "/self"):
			fmt.Fprint(conn, "30 /self\r\n")
		default:
			fmt.Fprint(conn, "51 Not found\r\n")
		}
	})
	base := "gemini://127.0.0.1:" + port

	t.Run("followed and memoized", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{}
		resolver := redirect.NewResolver(p)
		g := NewGemini(transport.NewDirect(), WithPrompter(p), WithRedirects(resolver))

		resp, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/old"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if resp.Locator.URL() != base+"/new" {
			t.Errorf("final URL = %q", resp.Locator.URL())
		}
		if string(resp.Body) != "new home" {
			t.Errorf("Body = %q", resp.Body)
		}
		if dst, ok := resolver.Lookup(base + "/old"); !ok || dst != base+"/new" {
			t.Errorf("permanent redirect not memoized: %q %v", dst, ok)
		}
	})

	t.Run("loop", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{}
		g := NewGemini(transport.NewDirect(), WithPrompter(p), WithRedirects(redirect.NewResolver(p)))
		_, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/a"), testOpts)
		if !errors.Is(err, redirect.ErrLoop) {
			t.Errorf("expected ErrLoop, got %v", err)
		}
		if KindOf(err) != KindRedirect {
			t.Errorf("KindOf() = %v", KindOf(err))
		}
	})

	t.Run("self", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{}
		g := NewGemini(transport.NewDirect(), WithPrompter(p), WithRedirects(redirect.NewResolver(p)))
		_, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/self"), testOpts)
		if !errors.Is(err, redirect.ErrSelfRedirect) {
			t.Errorf("expected ErrSelfRedirect, got %v", err)
		}
	})

	t.Run("unattended refusal aborts", func(t *testing.T) {
		t.Parallel()
		g := NewGemini(transport.NewDirect(), WithPrompter(prompt.NewFixed(false)))
		_, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/old"), testOpts)
		if !errors.Is(err, ErrUserAbort) {
			t.Errorf("expected ErrUserAbort, got %v", err)
		}
	})
}

func TestGemini_Input(t *testing.T) {
	t.Parallel()

	port, _ := tlsServer(t, func(req string, _ *bufio.Reader, conn net.Conn) {
		switch {
		case strings.Contains(req, "?"):
			fmt.Fprintf(conn, "20 text/plain\r\n%s", req)
		case strings.HasSuffix(req, "/secret"):
			fmt.Fprint(conn, "11 Password\r\n")
		default:
			fmt.Fprint(conn, "10 Search terms\r\n")
		}
	})
	base := "gemini://127.0.0.1:" + port

	t.Run("query is appended", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{input: "go lang"}
		g := NewGemini(transport.NewDirect(), WithPrompter(p))
		resp, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/search"), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(resp.Body) != base+"/search?go%20lang" {
			t.Errorf("Body = %q", resp.Body)
		}
		if len(p.inputs) != 1 || p.inputs[0] {
			t.Errorf("expected one visible input, got %v", p.inputs)
		}
	})

	t.Run("sensitive input", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{input: "hunter2"}
		g := NewGemini(transport.NewDirect(), WithPrompter(p))
		if _, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/secret"), testOpts); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(p.inputs) != 1 || !p.inputs[0] {
			t.Errorf("expected one sensitive input, got %v", p.inputs)
		}
	})

	t.Run("sync aborts", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{input: "x"}
		g := NewGemini(transport.NewDirect(), WithPrompter(p))
		opts := testOpts
		opts.SyncOnly = true
		_, err := g.Fetch(context.Background(), newParser(t).MustParse(base+"/search"), opts)
		if !errors.Is(err, ErrUserAbort) {
			t.Errorf("expected ErrUserAbort, got %v", err)
		}
		if len(p.inputs) != 0 {
			t.Error("prompter must not be asked during sync")
		}
	})
}

func TestGemini_Trust(t *testing.T) {
	t.Parallel()

	port, leaf := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
		fmt.Fprint(conn, "20 text/gemini\r\nok")
	})
	url := "gemini://127.0.0.1:" + port + "/"

	t.Run("validator sees the server certificate", func(t *testing.T) {
		t.Parallel()
		var gotHost, gotAddr string
		var gotDER []byte
		v := trustFunc(func(_ context.Context, address, hostname string, der []byte) error {
			gotHost, gotAddr, gotDER = hostname, address, der
			return nil
		})
		if _, err := NewGemini(transport.NewDirect(), WithTrust(v)).Fetch(context.Background(), newParser(t).MustParse(url), testOpts); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if gotHost != "127.0.0.1" || gotAddr != "127.0.0.1" {
			t.Errorf("host/address = %q/%q", gotHost, gotAddr)
		}
		if string(gotDER) != string(leaf.Raw) {
			t.Error("validator did not receive the leaf certificate")
		}
	})

	t.Run("rejection", func(t *testing.T) {
		t.Parallel()
		v := trustFunc(func(context.Context, string, string, []byte) error {
			return errors.New("fingerprint mismatch")
		})
		_, err := NewGemini(transport.NewDirect(), WithTrust(v)).Fetch(context.Background(), newParser(t).MustParse(url), testOpts)
		if !errors.Is(err, ErrTrust) {
			t.Errorf("expected ErrTrust, got %v", err)
		}
	})

	t.Run("ca mode with matching root", func(t *testing.T) {
		t.Parallel()
		pool := x509.NewCertPool()
		pool.AddCert(leaf)
		if _, err := NewGemini(transport.NewDirect(), WithCAVerification(pool)).Fetch(context.Background(), newParser(t).MustParse(url), testOpts); err != nil {
			t.Errorf("Fetch() error = %v", err)
		}
	})

	t.Run("ca mode with unknown root", func(t *testing.T) {
		t.Parallel()
		_, err := NewGemini(transport.NewDirect(), WithCAVerification(x509.NewCertPool())).Fetch(context.Background(), newParser(t).MustParse(url), testOpts)
		if !errors.Is(err, ErrTrust) {
			t.Errorf("expected ErrTrust, got %v", err)
		}
	})
}

func TestGemini_ClientCertificate(t *testing.T) {
	t.Parallel()

	port, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
		tlsConn, ok := conn.(*tls.Conn)
		if ok && len(tlsConn.ConnectionState().PeerCertificates) > 0 {
			fmt.Fprint(conn, "20 text/gemini\r\nwelcome back")
			return
		}
		fmt.Fprint(conn, "60 Certificate required\r\n")
	})
	url := "gemini://127.0.0.1:" + port + "/private"

	t.Run("request is retried once with a certificate", func(t *testing.T) {
		t.Parallel()
		certs := &fakeCerts{t: t}
		resp, err := NewGemini(transport.NewDirect(), WithClientCertificates(certs)).Fetch(context.Background(), newParser(t).MustParse(url), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(resp.Body) != "welcome back" {
			t.Errorf("Body = %q", resp.Body)
		}
		if certs.handled != 1 {
			t.Errorf("handled = %d, want 1", certs.handled)
		}
		if len(certs.recorded) != 1 || certs.recorded[0] != "127.0.0.1" {
			t.Errorf("recorded = %v", certs.recorded)
		}
	})

	t.Run("without a manager it is a protocol error", func(t *testing.T) {
		t.Parallel()
		_, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), newParser(t).MustParse(url), testOpts)
		var perr *ProtocolError
		if !errors.As(err, &perr) || perr.Status != "60" {
			t.Errorf("expected status 60 ProtocolError, got %v", err)
		}
	})

	t.Run("sync aborts", func(t *testing.T) {
		t.Parallel()
		certs := &fakeCerts{t: t}
		opts := testOpts
		opts.SyncOnly = true
		_, err := NewGemini(transport.NewDirect(), WithClientCertificates(certs)).Fetch(context.Background(), newParser(t).MustParse(url), opts)
		if !errors.Is(err, ErrUserAbort) {
			t.Errorf("expected ErrUserAbort, got %v", err)
		}
	})
}

func TestGemini_SizeLimit(t *testing.T) {
	t.Parallel()

	port, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
		fmt.Fprint(conn, "20 text/gemini\r\n"+strings.Repeat("x", 100))
	})
	opts := testOpts
	opts.MaxSize = 60
	_, err := NewGemini(transport.NewDirect()).Fetch(context.Background(), newParser(t).MustParse("gemini://127.0.0.1:"+port+"/big"), opts)
	if !errors.Is(err, ErrSizeLimitExceeded) {
		t.Errorf("expected ErrSizeLimitExceeded, got %v", err)
	}
}

func TestGemini_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	_ = ln.Close()

	_, err = NewGemini(transport.NewDirect()).Fetch(context.Background(), newParser(t).MustParse("gemini://127.0.0.1:"+port+"/"), testOpts)
	if !errors.Is(err, ErrConnectionRefused) {
		t.Errorf("expected ErrConnectionRefused, got %v", err)
	}
}

func TestSortIPv6First(t *testing.T) {
	t.Parallel()

	got := sortIPv6First([]string{"192.0.2.1", "2001:db8::1", "192.0.2.2", "::1"})
	want := []string{"2001:db8::1", "::1", "192.0.2.1", "192.0.2.2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("sortIPv6First() = %v, want %v", got, want)
	}
}

func TestGemini_CrossSchemeRedirect(t *testing.T) {
	t.Parallel()

	gopherPort := tcpServer(t, func(req string, _ *bufio.Reader, conn net.Conn) {
		if req == "/x" {
			fmt.Fprint(conn, "plain gopher text\r\n")
		}
	})
	geminiPort, _ := tlsServer(t, func(_ string, _ *bufio.Reader, conn net.Conn) {
		fmt.Fprintf(conn, "30 gopher://127.0.0.1:%s/0/x\r\n", gopherPort)
	})
	start := "gemini://127.0.0.1:" + geminiPort + "/moved"

	t.Run("registry follows with the target fetcher", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{}
		reg := NewRegistry(
			NewGemini(transport.NewDirect(), WithPrompter(p), WithRedirects(redirect.NewResolver(p))),
			NewGopher(transport.NewDirect()),
		)

		resp, err := reg.Fetch(context.Background(), newParser(t).MustParse(start), testOpts)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if resp.Locator.Scheme != "gopher" {
			t.Errorf("final scheme = %q, want gopher", resp.Locator.Scheme)
		}
		if !strings.Contains(string(resp.Body), "plain gopher text") {
			t.Errorf("Body = %q", resp.Body)
		}
	})

	t.Run("gemini alone hands the redirect back", func(t *testing.T) {
		t.Parallel()
		p := &answeringPrompter{}
		g := NewGemini(transport.NewDirect(), WithPrompter(p), WithRedirects(redirect.NewResolver(p)))

		_, err := g.Fetch(context.Background(), newParser(t).MustParse(start), testOpts)
		var redir *RedirectError
		if !errors.As(err, &redir) {
			t.Fatalf("expected *RedirectError, got %v", err)
		}
		if redir.Target.Scheme != "gopher" || redir.Chain == nil || redir.Chain.Hops() != 1 {
			t.Errorf("redirect = %+v", redir)
		}
	})

	t.Run("declined cross-scheme redirect aborts", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry(
			NewGemini(transport.NewDirect(), WithPrompter(prompt.NewFixed(false))),
			NewGopher(transport.NewDirect()),
		)
		_, err := reg.Fetch(context.Background(), newParser(t).MustParse(start), testOpts)
		if !errors.Is(err, ErrUserAbort) {
			t.Errorf("expected ErrUserAbort, got %v", err)
		}
	})
}

func TestGemini_NonTLSPeer(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fmt.Fprint(conn, "iThis is gopher\tfake\t(NULL)\t0\r\n.\r\n")
			_ = conn.Close()
		}
	}()
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	_, err = NewGemini(transport.NewDirect()).Fetch(context.Background(), newParser(t).MustParse("gemini://127.0.0.1:"+port+"/"), testOpts)
	if !errors.Is(err, ErrConnectionReset) {
		t.Errorf("expected ErrConnectionReset, got %v", err)
	}
	if KindOf(err) != KindConnectionReset {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
}
