// Package redirect decides whether a Gemini redirect may be followed.
//
// A Resolver lives as long as the session and remembers permanent (31)
// redirects. Each navigation opens a Chain that tracks the URLs already
// visited so that loops and overly long chains are refused.
package redirect
