package events

import "context"

// NoopPublisher is a Publisher that discards events. It is used when no
// NATS URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
