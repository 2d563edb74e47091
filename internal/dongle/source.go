package dongle

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Source is the byte stream a Receiver reads from. A timeout of zero blocks
// until data arrives or the stream closes.
type Source interface {
	Next(timeout time.Duration) (byte, error)
	Peek(timeout time.Duration) (byte, error)
	// ReadFull fills p, allowing timeout between octets, and returns the
	// number of octets read.
	ReadFull(p []byte, timeout time.Duration) (int, error)
	// Buffered is non-zero when octets are available without waiting.
	Buffered() int
}

// streamSource pumps a reader from a goroutine into a channel so reads can
// time out.
type streamSource struct {
	chunks  chan []byte
	pending []byte
	stop    chan struct{}

	mu  sync.Mutex
	err error
}

func newStreamSource(r io.Reader) *streamSource {
	s := &streamSource{
		chunks: make(chan []byte, 64),
		stop:   make(chan struct{}),
	}
	go s.pump(r)
	return s
}

// NewSource wraps r; the pump goroutine exits when r fails.
func NewSource(r io.Reader) Source {
	return newStreamSource(r)
}

func (s *streamSource) pump(r io.Reader) {
	defer close(s.chunks)
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.chunks <- chunk:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
	}
}

// close unblocks pending reads; the pump exits once its reader fails.
func (s *streamSource) close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *streamSource) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil || s.err == io.EOF {
		return ErrStreamClosed
	}
	return fmt.Errorf("%w: %w", ErrStreamClosed, s.err)
}

func (s *streamSource) fill(timeout time.Duration) error {
	if len(s.pending) > 0 {
		return nil
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return s.closedErr()
		}
		s.pending = chunk
		return nil
	case <-timer:
		return ErrTimeout
	case <-s.stop:
		return ErrStreamClosed
	}
}

func (s *streamSource) Next(timeout time.Duration) (byte, error) {
	if err := s.fill(timeout); err != nil {
		return 0, err
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

func (s *streamSource) Peek(timeout time.Duration) (byte, error) {
	if err := s.fill(timeout); err != nil {
		return 0, err
	}
	return s.pending[0], nil
}

func (s *streamSource) ReadFull(p []byte, timeout time.Duration) (int, error) {
	for i := range p {
		b, err := s.Next(timeout)
		if err != nil {
			return i, err
		}
		p[i] = b
	}
	return len(p), nil
}

func (s *streamSource) Buffered() int {
	return len(s.pending) + len(s.chunks)
}
