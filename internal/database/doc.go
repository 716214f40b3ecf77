// Package database stores capsule's security state in SQLite.
//
// The database lives at <config>/tofu.db and holds two tables:
//
//   - cert_cache: every server certificate fingerprint seen per
//     (hostname, address), with first/last sighting and a counter.
//   - client_cert_files: the certificate and key files last shown to each
//     host, so external PEM pairs can be offered again too.
//
// TrustStore implements the Trust-On-First-Use check on top of it. The
// database uses modernc.org/sqlite, a CGO-free driver, in WAL mode with a
// single connection.
package database
