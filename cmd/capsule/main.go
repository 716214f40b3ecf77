// Package main provides the entry point for the capsule CLI.
//
// capsule is an offline-first client for Gemini, Gopher, Finger and
// Spartan. Every page it fetches is kept in a local cache, and lists of
// URLs are refreshed in bulk by the sync command.
//
// Usage:
//
//	capsule go gemini://geminiprotocol.net/
//	capsule fetch-later gemini://example.org/long-read.gmi
//	capsule sync --depth 1
//
// See --help for all available options.
package main

func main() {
	Execute()
}
