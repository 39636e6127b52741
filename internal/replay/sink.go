package replay

import (
	"context"
	"errors"
)

// Sink receives metrics ticks from a running session
type Sink interface {
	Publish(ctx context.Context, tick Tick) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, tick Tick) error

// Publish implements Sink
func (f SinkFunc) Publish(ctx context.Context, tick Tick) error {
	return f(ctx, tick)
}

// Fanout publishes every tick to each sink in order
// Every sink is tried; the joined error reports all failures
type Fanout []Sink

// Publish implements Sink
func (f Fanout) Publish(ctx context.Context, tick Tick) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, tick); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
