package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
)

// Settings selects how connections leave the machine.
type Settings struct {
	// ProxyAddress routes connections through a SOCKS5 proxy when set.
	ProxyAddress string
	// EmbeddedTor starts a private Tor daemon.
	EmbeddedTor bool
	// TorStartupTimeout bounds the daemon bootstrap. Bootstrapping
	// usually takes one to three minutes.
	TorStartupTimeout time.Duration
}

// embeddedTor dials through a private Tor daemon. Closing it stops the
// daemon.
type embeddedTor struct {
	*SOCKS
	process *tornago.TorProcess
}

var _ Dialer = (*embeddedTor)(nil)

// startEmbeddedTor launches a daemon on OS-assigned ports. tornago blocks
// until the daemon is bootstrapped, so ctx is only checked afterwards.
func startEmbeddedTor(ctx context.Context, timeout time.Duration) (*embeddedTor, error) {
	launch, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure embedded Tor: %w", err)
	}
	process, err := tornago.StartTorDaemon(launch)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	tor := &embeddedTor{process: process}
	if err := ctx.Err(); err != nil {
		_ = tor.Close() //nolint:errcheck // startup already failed
		return nil, err
	}
	if tor.SOCKS, err = NewSOCKS(process.SocksAddr()); err != nil {
		_ = tor.Close() //nolint:errcheck // startup already failed
		return nil, err
	}
	return tor, nil
}

// Close stops the daemon. Closing twice is a no-op.
func (t *embeddedTor) Close() error {
	if t.process == nil {
		return nil
	}
	err := t.process.Stop()
	t.process = nil
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the Dialer described by s. The returned closer stops the
// embedded daemon, if one was started.
func Open(ctx context.Context, s Settings, logger *slog.Logger) (Dialer, io.Closer, error) {
	switch {
	case s.EmbeddedTor:
		logger.Info("starting embedded Tor daemon", "timeout", s.TorStartupTimeout)
		tor, err := startEmbeddedTor(ctx, s.TorStartupTimeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("embedded Tor daemon ready",
			"socks", tor.ProxyAddress(), "control", tor.process.ControlAddr())
		return tor, tor, nil

	case s.ProxyAddress != "":
		d, err := NewSOCKS(s.ProxyAddress)
		if err != nil {
			return nil, nil, err
		}
		if status := d.CheckConnection(ctx); status != ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy %s: %w", s.ProxyAddress, status.Error())
		}
		logger.Debug("using SOCKS5 proxy", "proxy", s.ProxyAddress)
		return d, nopCloser{}, nil

	default:
		return NewDirect(), nopCloser{}, nil
	}
}
