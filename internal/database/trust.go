package database

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/capsule/internal/prompt"
)

// TrustStore validates server certificates Trust-On-First-Use.
type TrustStore struct {
	db       *DB
	certDir  string
	prompter prompt.Prompter
	now      func() time.Time
	logger   *slog.Logger
}

// TrustOption configures a TrustStore.
type TrustOption func(*TrustStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrustOption {
	return func(s *TrustStore) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TrustOption {
	return func(s *TrustStore) {
		s.logger = logger
	}
}

// NewTrustStore returns a trust store recording into db. Accepted
// certificates are saved as PEM files under certDir and conflicts are
// settled by p.
func NewTrustStore(db *DB, certDir string, p prompt.Prompter, opts ...TrustOption) *TrustStore {
	s := &TrustStore{
		db:       db,
		certDir:  certDir,
		prompter: p,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint returns the hex SHA-256 digest of a DER certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// Validate checks the certificate presented by hostname at address.
//
// The certificate must be within its validity period and name the host.
// The first certificate seen for (hostname, address) is trusted and
// recorded; later ones must match a recorded fingerprint, or be accepted
// by the prompter after a warning.
func (s *TrustStore) Validate(ctx context.Context, address, hostname string, der []byte) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := s.now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("%w until %s", ErrCertNotYetValid, cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("%w as of %s", ErrCertExpired, cert.NotAfter.Format(time.RFC3339))
	}
	if !matchesHostname(cert, hostname) {
		return fmt.Errorf("%w: %s", ErrHostnameMismatch, hostname)
	}

	fp := Fingerprint(der)
	records, err := s.db.TrustRecords(ctx, hostname, address)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		s.logger.Debug("TOFU: trusting first certificate for host", "host", hostname, "fingerprint", fp)
		return s.accept(ctx, hostname, address, fp, der, now)
	}

	var mostFrequent TrustRecord
	for _, r := range records {
		if r.Fingerprint == fp {
			s.logger.Debug("TOFU: accepting previously seen certificate",
				"host", hostname, "count", r.Count, "fingerprint", fp)
			return s.db.TouchTrust(ctx, hostname, address, fp, now)
		}
		if r.Count > mostFrequent.Count {
			mostFrequent = r
		}
	}

	warning := s.conflictWarning(hostname, address, fp, mostFrequent, now)
	s.logger.Warn("TOFU: unrecognised certificate", "host", hostname, "address", address,
		"fingerprint", fp, "previous_count", mostFrequent.Count)

	ok, err := s.prompter.Confirm(warning+"\nAccept this new certificate?", false)
	if err != nil || !ok {
		return fmt.Errorf("%w for %s (%s)", ErrCertRejected, hostname, address)
	}
	return s.accept(ctx, hostname, address, fp, der, now)
}

func (s *TrustStore) accept(ctx context.Context, hostname, address, fp string, der []byte, now time.Time) error {
	err := s.db.InsertTrust(ctx, TrustRecord{
		Hostname:    hostname,
		Address:     address,
		Fingerprint: fp,
		FirstSeen:   now,
		LastSeen:    now,
		Count:       1,
	})
	if err != nil {
		return err
	}
	if err := s.saveCertificate(fp, der); err != nil {
		s.logger.Warn("failed to save certificate", "fingerprint", fp, "error", err)
	}
	return nil
}

// CertificatePath returns where the certificate with fingerprint fp is saved.
func (s *TrustStore) CertificatePath(fp string) string {
	return filepath.Join(s.certDir, fp+".crt")
}

func (s *TrustStore) saveCertificate(fp string, der []byte) error {
	if err := os.MkdirAll(s.certDir, 0o750); err != nil {
		return err
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return os.WriteFile(s.CertificatePath(fp), data, 0o600)
}

// loadCertificate reads a pinned certificate back.
func (s *TrustStore) loadCertificate(fp string) (*x509.Certificate, error) {
	data, err := os.ReadFile(s.CertificatePath(fp))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return x509.ParseCertificate(data)
	}
	return x509.ParseCertificate(block.Bytes)
}

func (s *TrustStore) conflictWarning(hostname, address, fp string, previous TrustRecord, now time.Time) string {
	var b strings.Builder
	b.WriteString("****************************************\n")
	b.WriteString("[SECURITY WARNING] Unrecognised certificate!\n")
	fmt.Fprintf(&b, "The certificate presented for %s (%s) has never been seen before.\n", hostname, address)
	b.WriteString("This MIGHT be a Man-in-the-Middle attack.\n")
	fmt.Fprintf(&b, "A different certificate has previously been seen %d times.\n", previous.Count)
	if pinned, err := s.loadCertificate(previous.Fingerprint); err == nil {
		if ttl := pinned.NotAfter.Sub(now); ttl < 0 {
			b.WriteString("That certificate has expired, which reduces suspicion somewhat.\n")
		} else {
			fmt.Fprintf(&b, "That certificate is still valid for: %s\n", ttl.Round(time.Minute))
		}
	}
	b.WriteString("****************************************\n")
	b.WriteString("Attempt to verify the new certificate fingerprint out-of-band:\n")
	b.WriteString(fp)
	return b.String()
}

// matchesHostname checks the subject alternative names and, as a
// fallback, the common name. Wildcards match a single label.
func matchesHostname(cert *x509.Certificate, hostname string) bool {
	if cert.VerifyHostname(hostname) == nil {
		return true
	}
	return matchPattern(cert.Subject.CommonName, hostname)
}

func matchPattern(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSuffix(pattern, "."))
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if pattern == "" {
		return false
	}
	if pattern == host {
		return true
	}
	suffix, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return false
	}
	label, rest, found := strings.Cut(host, ".")
	return found && label != "" && rest == suffix
}
