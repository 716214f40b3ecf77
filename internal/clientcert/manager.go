package clientcert

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/capsule/internal/prompt"
	"github.com/nao1215/capsule/internal/protocol"
)

// Store remembers which certificate was last used with each host.
// *database.DB implements it.
type Store interface {
	ClientCertFor(ctx context.Context, host string) (certPath, keyPath string, ok bool, err error)
	SetClientCert(ctx context.Context, host, certPath, keyPath string) error
	ForgetClientCert(ctx context.Context, host string) error
	ForgetClientCertFile(ctx context.Context, certPath string) error
}

// Identity is an activated client certificate.
type Identity struct {
	Name      string
	CertPath  string
	KeyPath   string
	Transient bool
}

// Manager tracks the active client certificate.
type Manager struct {
	configDir string
	store     Store
	prompter  prompt.Prompter
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	active  *Identity
	cert    tls.Certificate
	domains []string
	created []Identity
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a manager keeping certificates under configDir.
func NewManager(configDir string, store Store, p prompt.Prompter, opts ...Option) *Manager {
	m := &Manager{
		configDir: configDir,
		store:     store,
		prompter:  p,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TransientDir returns the directory of transient certificates.
func (m *Manager) TransientDir() string {
	return filepath.Join(m.configDir, "transient_certs")
}

// PersistentDir returns the directory of persistent certificates.
func (m *Manager) PersistentDir() string {
	return filepath.Join(m.configDir, "client_certs")
}

// Activate loads the PEM pair and makes it the active certificate. The
// domain scope starts empty.
func (m *Manager) Activate(certPath, keyPath string, transient bool) error {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrCertNotFound, err)
		}
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = &Identity{
		Name:      strings.TrimSuffix(filepath.Base(certPath), filepath.Ext(certPath)),
		CertPath:  certPath,
		KeyPath:   keyPath,
		Transient: transient,
	}
	m.cert = cert
	m.domains = nil
	m.logger.Debug("client certificate activated", "name", m.active.Name, "transient", transient)
	return nil
}

// ActivatePersistent activates the persistent certificate called name.
func (m *Manager) ActivatePersistent(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	dir := m.PersistentDir()
	return m.Activate(filepath.Join(dir, name+".crt"), filepath.Join(dir, name+".key"), false)
}

// Active returns the active identity.
func (m *Manager) Active() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Identity{}, false
	}
	return *m.active, true
}

// Domains returns the hosts the active certificate was shown to.
func (m *Manager) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.domains)
}

// Certificate returns the active certificate for the TLS handshake.
func (m *Manager) Certificate() (*tls.Certificate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	cert := m.cert
	return &cert, true
}

// RecordHandshake adds host to the domain scope. Persistent certificates
// are also remembered for host so that Suggest can offer them again.
func (m *Manager) RecordHandshake(ctx context.Context, host string) error {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(m.domains, host) {
		m.domains = append(m.domains, host)
	}
	id := *m.active
	m.mu.Unlock()

	if m.store == nil || id.Transient {
		return nil
	}
	return m.store.SetClientCert(ctx, host, id.CertPath, id.KeyPath)
}

// CheckDomain is called before navigating to host. Leaving the scope of
// the active certificate asks whether to deactivate it: a transient
// certificate must be destroyed to continue, a persistent one may stay
// active.
func (m *Manager) CheckDomain(ctx context.Context, host string) error {
	m.mu.Lock()
	active := m.active
	inScope := len(m.domains) == 0 || slices.Contains(m.domains, host)
	m.mu.Unlock()
	if active == nil || inScope {
		return nil
	}

	if active.Transient {
		ok, err := m.prompter.Confirm("Permanently delete currently active transient certificate?", false)
		if err != nil || !ok {
			return fmt.Errorf("%w: staying with transient certificate %s", protocol.ErrUserAbort, active.Name)
		}
		return m.Deactivate(ctx)
	}

	ok, err := m.prompter.Confirm("PRIVACY ALERT: Deactivate client cert before connecting to a new domain?", true)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrUserAbort, err)
	}
	if !ok {
		m.logger.Info("keeping certificate active", "name", active.Name, "host", host)
		return nil
	}
	return m.Deactivate(ctx)
}

// Suggest offers to reactivate the certificate last used with host when
// none is active.
func (m *Manager) Suggest(ctx context.Context, host string) error {
	if _, active := m.Active(); active || m.store == nil {
		return nil
	}
	certPath, keyPath, ok, err := m.store.ClientCertFor(ctx, host)
	if err != nil || !ok {
		return err
	}

	yes, err := m.prompter.Confirm(fmt.Sprintf("PRIVACY ALERT: Reactivate previously used client cert for %s?", host), false)
	if err != nil {
		return nil //nolint:nilerr // no answer means staying anonymous
	}
	if yes {
		return m.Activate(certPath, keyPath, false)
	}
	if m.prompter.Interactive() {
		m.logger.Info("remaining unidentified", "host", host)
		return m.store.ForgetClientCert(ctx, host)
	}
	return nil
}

// Choices offered when a server requests a certificate.
var requestChoices = []string{
	"Give up.",
	"Generate a new transient certificate.",
	"Generate a new persistent certificate.",
	"Load a previously generated persistent.",
	"Load certificate from an external file.",
}

// HandleRequest reacts to a Gemini 6x status for host. It returns nil once
// a certificate is active and the request may be retried.
func (m *Manager) HandleRequest(ctx context.Context, host, status, meta string) error {
	if !m.prompter.Interactive() {
		return fmt.Errorf("%w: %s requests a client certificate", protocol.ErrUserAbort, host)
	}

	var question string
	switch status {
	case "64", "65":
		question = "The server rejected your certificate because it is either expired or not yet valid."
	case "63":
		question = "The server did not accept your certificate.\n" +
			"You may need to e.g. coordinate with the admin to get your certificate fingerprint whitelisted."
	default:
		question = fmt.Sprintf("The site %s is requesting a client certificate.\n"+
			"This will allow the site to recognise you across requests.", host)
	}
	question = "SERVER SAYS: " + meta + "\n" + question + "\nWhat do you want to do?"

	choice, err := m.prompter.Choose(question, requestChoices)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrUserAbort, err)
	}

	switch choice {
	case 1:
		_, err = m.GenerateTransient()
	case 2:
		var name string
		name, err = m.prompter.Input(fmt.Sprintf("What do you want to name this new certificate?\n"+
			"Answering `mycert` will create `%[1]s/mycert.crt` and `%[1]s/mycert.key`", m.PersistentDir()), false)
		if err == nil {
			_, err = m.GeneratePersistent(strings.TrimSpace(name))
		}
	case 3:
		err = m.choosePersistent()
	case 4:
		err = m.loadExternal()
	default:
		return fmt.Errorf("%w: giving up", protocol.ErrUserAbort)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrUserAbort, err)
	}
	return nil
}

func (m *Manager) choosePersistent() error {
	names, err := m.Persistent()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return ErrNoPersistentCerts
	}
	idx, err := m.prompter.Choose("Which certificate?", names)
	if err != nil {
		return err
	}
	return m.ActivatePersistent(names[idx])
}

func (m *Manager) loadExternal() error {
	certPath, err := m.prompter.Input("Loading client certificate file, in PEM format (blank line to cancel)\nCertfile path:", false)
	if err != nil || strings.TrimSpace(certPath) == "" {
		return fmt.Errorf("%w: no certificate given", ErrCertNotFound)
	}
	keyPath, err := m.prompter.Input("Loading private key file, in PEM format (blank line to cancel)\nKeyfile path:", false)
	if err != nil || strings.TrimSpace(keyPath) == "" {
		return fmt.Errorf("%w: no key given", ErrCertNotFound)
	}
	return m.Activate(absPath(certPath), absPath(keyPath), false)
}

// absPath expands p so that it still resolves when read back from the
// database in another working directory.
func absPath(p string) string {
	p = expandHome(strings.TrimSpace(p))
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// GenerateTransient creates and activates a one-day certificate with a
// random name.
func (m *Manager) GenerateTransient() (Identity, error) {
	name := uuid.NewString()
	certPath, keyPath, err := generate(m.TransientDir(), name, m.now(), TransientValidity)
	if err != nil {
		return Identity{}, err
	}
	if err := m.Activate(certPath, keyPath, true); err != nil {
		return Identity{}, err
	}
	id, _ := m.Active()
	m.mu.Lock()
	m.created = append(m.created, id)
	m.mu.Unlock()
	return id, nil
}

// GeneratePersistent creates a one-year certificate called name and
// activates it.
func (m *Manager) GeneratePersistent(name string) (Identity, error) {
	if err := validateName(name); err != nil {
		return Identity{}, err
	}
	certPath, keyPath, err := generate(m.PersistentDir(), name, m.now(), PersistentValidity)
	if err != nil {
		return Identity{}, err
	}
	if err := m.Activate(certPath, keyPath, false); err != nil {
		return Identity{}, err
	}
	id, _ := m.Active()
	return id, nil
}

// Persistent returns the names of the persistent certificates on disk.
func (m *Manager) Persistent() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.PersistentDir(), "*.crt"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, p := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(p), ".crt"))
	}
	sort.Strings(names)
	return names, nil
}

// Deactivate drops the active certificate. Transient certificate files are
// deleted along with the hosts they were remembered for.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.cert = tls.Certificate{}
	m.domains = nil
	m.mu.Unlock()

	if active == nil || !active.Transient {
		return nil
	}
	m.logger.Debug("destroying transient certificate", "name", active.Name)
	return m.destroy(ctx, *active)
}

// Close deactivates the active certificate and deletes every transient
// certificate created by this manager.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Deactivate(ctx)

	m.mu.Lock()
	created := m.created
	m.created = nil
	m.mu.Unlock()
	for _, id := range created {
		err = errors.Join(err, m.destroy(ctx, id))
	}
	return err
}

func (m *Manager) destroy(ctx context.Context, id Identity) error {
	var errs error
	for _, p := range []string{id.CertPath, id.KeyPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = errors.Join(errs, err)
		}
	}
	if m.store != nil {
		errs = errors.Join(errs, m.store.ForgetClientCertFile(ctx, id.CertPath))
	}
	return errs
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}
