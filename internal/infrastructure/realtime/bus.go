package realtime

import (
	"context"
	"encoding/json"
)

// Envelope is one event addressed to a set of users. Payload is the exact
// bytes written to each client.
type Envelope struct {
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// Bus carries envelopes to every node's Router. Publish order is preserved
// per publisher.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Run pumps remote envelopes into the local router until ctx ends.
	Run(ctx context.Context) error
	Close() error
}

// LocalBus delivers straight into a Router. Used on single-node deployments.
type LocalBus struct {
	router *Router
}

func NewLocalBus(r *Router) *LocalBus {
	return &LocalBus{router: r}
}

var _ Bus = (*LocalBus)(nil)

func (b *LocalBus) Publish(_ context.Context, env Envelope) error {
	b.router.Deliver(env.Recipients, env.Payload)
	return nil
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBus) Close() error { return nil }
