package event

import (
	"errors"
	"sync"
	"time"
)

var ErrStreamClosed = errors.New("cannot notify closed stream")

type Stream[E any] interface {
	ID() string
	Notify(event E, timeout time.Duration) error
	Close()
}

// BufferedStream hands events to a single consumer over a bounded channel.
// Notify blocks up to timeout when the consumer lags; on timeout the stream
// closes itself so an abandoned consumer cannot stall the producer.
type BufferedStream[E any] struct {
	sync.Mutex

	id string

	closed bool
	ch     chan E
}

func NewBufferedStream[E any](id string, bufferSize int) *BufferedStream[E] {
	return &BufferedStream[E]{
		id: id,
		ch: make(chan E, bufferSize),
	}
}

func (s *BufferedStream[E]) ID() string {
	return s.id
}

func (s *BufferedStream[E]) Notify(event E, timeout time.Duration) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return ErrStreamClosed
	}

	select {
	case s.ch <- event:
	case <-time.After(timeout):
		s.Unlock()
		s.Close()
		return errors.New("timed out sending event to stream")
	}

	s.Unlock()
	return nil
}

func (s *BufferedStream[E]) Channel() <-chan E {
	return s.ch
}

func (s *BufferedStream[E]) Close() {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.ch)
}
