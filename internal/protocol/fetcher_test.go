package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/transport"
)

type stubFetcher struct {
	scheme string
	calls  int
}

func (s *stubFetcher) Scheme() string   { return s.scheme }
func (s *stubFetcher) DefaultPort() int { return 1 }
func (s *stubFetcher) Fetch(_ context.Context, loc *locator.Locator, _ FetchOptions) (*Response, error) {
	s.calls++
	return &Response{Locator: loc, Body: []byte("stub"), Mime: "text/plain"}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	d := transport.NewDirect()
	stub := &stubFetcher{scheme: "gemini"}
	reg := NewRegistry(NewGemini(d), NewGopher(d), NewFinger(d), NewSpartan(d))

	if got := strings.Join(reg.Schemes(), ","); got != "finger,gemini,gopher,spartan" {
		t.Errorf("Schemes() = %s", got)
	}
	if reg.Supports("http") {
		t.Error("http must not be supported unless registered")
	}

	reg.Register(stub)
	p := newParser(t)
	resp, err := reg.Fetch(context.Background(), p.MustParse("gemini://example.org/"), FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stub.calls != 1 || string(resp.Body) != "stub" {
		t.Errorf("stub was not used: calls=%d body=%q", stub.calls, resp.Body)
	}

	_, err = reg.Fetch(context.Background(), p.MustParse("https://example.org/"), FetchOptions{})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}

	if f, ok := reg.Lookup("gopher"); !ok || f.DefaultPort() != 70 {
		t.Errorf("Lookup(gopher) = %v, %v", f, ok)
	}
}
