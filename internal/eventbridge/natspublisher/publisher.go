// Package natspublisher implements eventbridge.Publisher over NATS core
// pub/sub, grounded on wpnpeiris-nats-s3's nats.Connect-and-wrap pattern
// (a thin client type owning a single *nats.Conn).
package natspublisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher publishes gateway events onto a NATS subject, one subject
// per namespaced event kind (e.g. "comfy.execution_success").
type Publisher struct {
	conn *nats.Conn
}

// New connects to the given NATS server URL. The connection is
// reconnect-aware by default (nats.go's built-in reconnect loop), mirroring
// the corpus's preference for the library's own resilience over
// hand-rolled retry.
func New(url string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("natspublisher: connecting to %s: %w", url, err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish JSON-encodes payload and publishes it to subject. promptID is
// accepted to satisfy eventbridge.Publisher's interface (a future
// per-prompt subject scheme could use it); the current scheme keys
// purely by event kind.
func (p *Publisher) Publish(ctx context.Context, subject, promptID string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("natspublisher: marshaling payload: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("natspublisher: publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the underlying NATS connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
