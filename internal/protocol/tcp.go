package protocol

import (
	"context"
	"net"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/transport"
)

// dialTCP connects to loc through d and applies the context deadline to
// the connection.
func dialTCP(ctx context.Context, d transport.Dialer, loc *locator.Locator) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", loc.Address())
	if err != nil {
		return nil, ClassifyNetError(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close() //nolint:errcheck // already failing
			return nil, ClassifyNetError(err)
		}
	}
	return conn, nil
}

// sendRequest writes req to conn.
func sendRequest(conn net.Conn, req string) error {
	if _, err := conn.Write([]byte(req)); err != nil {
		return ClassifyNetError(err)
	}
	return nil
}
