package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer goroutine to the pull-based Stream.
type eventStream struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// newEventStream runs produce in a goroutine. produce must stop when ctx
// is cancelled and should deliver events with sendEvent.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) *eventStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		if err := produce(ctx, s.events); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// Recv returns the next event, io.EOF after the producer finished
// cleanly, or the producer's error.
func (s *eventStream) Recv() (Event, error) {
	ev, ok := <-s.events
	if ok {
		return ev, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

// Close cancels the producer and waits for it to exit.
func (s *eventStream) Close() error {
	s.cancel()
	for range s.events {
	}
	<-s.done
	return nil
}

// sendEvent delivers ev unless ctx is cancelled first.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
