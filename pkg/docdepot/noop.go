package docdepot

import "context"

// NoopAnnouncer is a no-operation implementation of Announcer.
// Useful when no message broker is configured and for testing.
type NoopAnnouncer struct{}

// NewNoopAnnouncer creates a new no-operation announcer.
func NewNoopAnnouncer() Announcer {
	return &NoopAnnouncer{}
}

// Announce does nothing and returns nil.
func (n *NoopAnnouncer) Announce(ctx context.Context, event *Event) error {
	return nil
}
