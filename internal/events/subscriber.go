package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// WatchConfigs calls onChange with the key of every config record changed
// by any instance until ctx is done. Undecodable payloads are logged and skipped.
func WatchConfigs(ctx context.Context, sub Subscriber, logger *slog.Logger, onChange func(key string)) error {
	if logger == nil {
		logger = slog.Default()
	}
	ch, cancel, err := sub.Subscribe(TopicConfigAll)
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				var ev ConfigChanged
				if err := json.Unmarshal(data, &ev); err != nil || ev.Key == "" {
					logger.Warn("ignoring config event", "err", err)
					continue
				}
				onChange(ev.Key)
			}
		}
	}()
	return nil
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id for published events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
