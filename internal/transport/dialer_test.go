package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSOCKS(t *testing.T) {
	t.Parallel()

	valid := []string{"127.0.0.1:9050", "localhost:1080", "[::1]:9050"}
	for _, addr := range valid {
		t.Run("valid "+addr, func(t *testing.T) {
			t.Parallel()
			d, err := NewSOCKS(addr)
			if err != nil {
				t.Fatalf("NewSOCKS(%q) error = %v", addr, err)
			}
			if d.ProxyAddress() != addr {
				t.Errorf("ProxyAddress() = %q, want %q", d.ProxyAddress(), addr)
			}
		})
	}

	invalid := []string{"", "127.0.0.1", ":9050", "127.0.0.1:", "127.0.0.1:0", "127.0.0.1:70000", "host:port"}
	for _, addr := range invalid {
		t.Run("invalid "+addr, func(t *testing.T) {
			t.Parallel()
			if _, err := NewSOCKS(addr); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("NewSOCKS(%q) = %v, want ErrInvalidProxyAddress", addr, err)
			}
		})
	}
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  ProxyStatus
		str     string
		wantErr error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			t.Parallel()
			if tt.status.String() != tt.str {
				t.Errorf("String() = %q, want %q", tt.status.String(), tt.str)
			}
			if !errors.Is(tt.status.Error(), tt.wantErr) {
				t.Errorf("Error() = %v, want %v", tt.status.Error(), tt.wantErr)
			}
		})
	}
}

// serveOnce starts a listener that runs handle for the first connection.
func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return listener.Addr().String()
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("unreachable proxy", func(t *testing.T) {
		t.Parallel()
		d, err := NewSOCKS("127.0.0.1:59999")
		if err != nil {
			t.Fatal(err)
		}
		if status := d.CheckConnection(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", status)
		}
	})

	t.Run("non SOCKS5 server", func(t *testing.T) {
		t.Parallel()
		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		})
		d, err := NewSOCKS(addr)
		if err != nil {
			t.Fatal(err)
		}
		if status := d.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("SOCKS5 requiring auth", func(t *testing.T) {
		t.Parallel()
		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})
		d, err := NewSOCKS(addr)
		if err != nil {
			t.Fatal(err)
		}
		if status := d.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("working SOCKS5 proxy", func(t *testing.T) {
		t.Parallel()
		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			connectBuf := make([]byte, 256)
			_, _ = conn.Read(connectBuf)
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})
		d, err := NewSOCKS(addr)
		if err != nil {
			t.Fatal(err)
		}
		if status := d.CheckConnection(context.Background()); status != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %v", status)
		}
	})
}

func TestDirect(t *testing.T) {
	t.Parallel()

	addr := serveOnce(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("hi"))
	})

	d := NewDirect()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("DialContext() error = %v", err)
	}
	defer conn.Close()

	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi" {
		t.Errorf("read %q, want hi", got)
	}

	addrs, err := d.LookupHost(ctx, "localhost")
	if err != nil || len(addrs) == 0 {
		t.Errorf("LookupHost(localhost) = %v, %v", addrs, err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewHTTPClient(NewDirect(), 5*time.Second)
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}

	resp, err := client.Get(server.URL) //nolint:noctx // test code
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("direct by default", func(t *testing.T) {
		t.Parallel()
		d, closer, err := Open(context.Background(), Settings{}, logger)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer closer.Close()
		if _, ok := d.(*Direct); !ok {
			t.Errorf("expected *Direct, got %T", d)
		}
	})

	t.Run("unreachable proxy fails", func(t *testing.T) {
		t.Parallel()
		_, _, err := Open(context.Background(), Settings{ProxyAddress: "127.0.0.1:59997"}, logger)
		if !errors.Is(err, ErrProxyCannotConnect) {
			t.Errorf("expected ErrProxyCannotConnect, got %v", err)
		}
	})
}

func TestEmbeddedTorClose(t *testing.T) {
	t.Parallel()

	d, err := NewSOCKS("127.0.0.1:9050")
	if err != nil {
		t.Fatal(err)
	}
	tor := &embeddedTor{SOCKS: d}
	for i := range 2 {
		if err := tor.Close(); err != nil {
			t.Errorf("Close() #%d = %v", i+1, err)
		}
	}
	if tor.ProxyAddress() != "127.0.0.1:9050" {
		t.Errorf("ProxyAddress() = %q", tor.ProxyAddress())
	}
}
