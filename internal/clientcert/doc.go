// Package clientcert manages the client certificate shown to Gemini servers.
//
// At most one certificate is active. Activating one starts an empty domain
// scope; every TLS handshake adds the host to it, and leaving the scope asks
// the user whether to keep the certificate. Transient certificates live for
// a day under <config>/transient_certs and are deleted when deactivated.
// Persistent ones live for a year under <config>/client_certs and are never
// deleted automatically.
package clientcert
