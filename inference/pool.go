package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("inference: pool is closed")

// Pool hands out sessions of one model to concurrent scorers. A session is
// used by one caller at a time; callers wait for a free one.
type Pool struct {
	modelPath string
	size      int

	// idle is closed by Close; sends happen only under mu while open.
	idle   chan *Session
	mu     sync.Mutex
	closed bool
}

// NewPool loads size sessions of the model at modelPath. A size below one
// means one session.
func NewPool(modelPath string, io IO, size int) (*Pool, error) {
	size = max(size, 1)
	p := &Pool{
		modelPath: modelPath,
		size:      size,
		idle:      make(chan *Session, size),
	}

	for i := range size {
		s, err := NewSession(modelPath, io)
		if err != nil {
			_ = p.Close() // Best-effort cleanup; original error takes precedence
			return nil, fmt.Errorf("loading session %d of %s: %w", i, modelPath, err)
		}
		p.idle <- s
	}
	return p, nil
}

// Acquire waits for an idle session or for ctx to end.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case s, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release hands s back. After Close, or if the pool is already full, s is
// closed instead.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		select {
		case p.idle <- s:
			return
		default:
		}
	}
	_ = s.Close()
}

// Infer runs features through whichever session is free.
func (p *Pool) Infer(ctx context.Context, features []float32) ([]float32, error) {
	s, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(s)

	return s.Infer(ctx, features)
}

// Close releases every idle session. Sessions still acquired are closed
// when they are released. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	var errs []error
	for s := range p.idle {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the number of sessions the pool was created with.
func (p *Pool) Size() int { return p.size }

// ModelPath returns the model file the sessions were loaded from.
func (p *Pool) ModelPath() string { return p.modelPath }
