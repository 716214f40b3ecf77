// Package transport opens the TCP connections used by every fetcher.
//
// A Dialer either connects directly, through a SOCKS5 proxy
// (golang.org/x/net/proxy), or through a private Tor daemon started with
// tornago. Fetchers only see the Dialer interface, so the choice is made
// once at session start.
package transport
