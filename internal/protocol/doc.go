// Package protocol fetches resources over the supported schemes.
//
// Each scheme has a Fetcher (Gemini, Gopher, Finger, Spartan and HTTP) and
// a Registry dispatches on the locator's scheme:
//
//	reg := protocol.NewRegistry(
//		protocol.NewGemini(dialer, protocol.WithTrust(store)),
//		protocol.NewGopher(dialer),
//	)
//	resp, err := reg.Fetch(ctx, loc, protocol.FetchOptions{Timeout: 5 * time.Second})
//
// Raw TCP connections always go through a transport.Dialer, so a SOCKS5
// proxy or an embedded Tor daemon covers every scheme.
//
// # Errors
//
// Failures are reported with the sentinel errors in errors.go and
// *ProtocolError. KindOf reduces any error to a Kind for statistics.
//
// # Size limits
//
// FetchOptions.MaxSize caps a body. A response whose length is declared
// and above the cap is refused before reading. A response without a
// declared length is abandoned once it grows past half the cap.
package protocol
