// Package session wires the cache, fetchers, trust store, certificate
// manager and lists into a single object that navigates and syncs.
//
// A Session is opened once at startup from a config.Config and closed at
// shutdown. It holds every piece of state that outlives a single request:
// the permanent redirect map, the trust database, the active client
// certificate and the prompter used for interactive decisions. Nothing is
// kept in globals.
//
// Interactive navigation goes through Go. Sync uses the same fetch path
// through Fetch, with the short timeout and no questions asked.
package session
