package generation

import "sync"

// Stream is a lazy, finite, non-restartable sequence of text fragments.
// Fragments arrive in emission order. After the fragment channel closes,
// Err reports whether the stream ended normally or failed; a stream that
// fails before producing anything yields zero fragments and a non-nil Err.
type Stream struct {
	frags chan string

	mu  sync.Mutex
	err error
}

// NewStream creates a stream with the given fragment buffer size.
// Producers call Emit then Fail/Finish; consumers range over Fragments
// and check Err once the channel is closed.
func NewStream(buffer int) *Stream {
	return &Stream{frags: make(chan string, buffer)}
}

// Fragments returns the fragment channel. It is closed by Finish or Fail.
func (s *Stream) Fragments() <-chan string {
	return s.frags
}

// Err reports the stream failure, if any. Only meaningful after the
// fragment channel has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Emit pushes one fragment, blocking until the consumer accepts it.
func (s *Stream) Emit(fragment string) {
	s.frags <- fragment
}

// Finish closes the stream normally.
func (s *Stream) Finish() {
	close(s.frags)
}

// Fail records the failure and closes the stream. The error is distinct
// from an empty response: consumers must check Err after draining.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.frags)
}
