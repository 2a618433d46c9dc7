package engine

import (
	"errors"
	"iter"
)

// ErrStreamConsumed is reported by a Stream that was ranged over twice.
var ErrStreamConsumed = errors.New("token stream already consumed")

// ProduceFunc pushes tokens to yield until the backend is done or yield
// returns false, and reports the stats for the work it performed.
type ProduceFunc func(yield func(token string) bool) (Stats, error)

// Stream is a lazy, finite, single-use token sequence. Nothing runs until
// Tokens is ranged over; Err and Stats are valid once the range loop exits.
type Stream struct {
	produce ProduceFunc
	started bool
	stats   Stats
	err     error
}

// NewStream wraps a backend producer.
func NewStream(produce ProduceFunc) *Stream {
	return &Stream{produce: produce}
}

// FailedStream returns a stream that yields nothing and reports err.
func FailedStream(err error) *Stream {
	return &Stream{
		produce: func(func(string) bool) (Stats, error) { return Stats{}, err },
	}
}

// Tokens returns the token sequence. Breaking out of the range loop stops the
// producer at the next token boundary.
func (s *Stream) Tokens() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.started {
			// A producer error outranks the misuse.
			if s.err == nil {
				s.err = ErrStreamConsumed
			}
			return
		}
		s.started = true
		stopped := false
		s.stats, s.err = s.produce(func(tok string) bool {
			if stopped {
				return false
			}
			if !yield(tok) {
				stopped = true
				return false
			}
			return true
		})
	}
}

// Err reports the producer error, if any.
func (s *Stream) Err() error { return s.err }

// Stats reports the counters for the consumed part of the stream.
func (s *Stream) Stats() Stats { return s.stats }
