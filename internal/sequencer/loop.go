package sequencer

import (
	"context"
	"errors"
	"sync"

	"media-player/internal/models"
)

// ErrLoopClosed is returned by Do after Close.
var ErrLoopClosed = errors.New("sequencer loop closed")

const loopQueueSize = 64

// Loop runs functions one at a time on a dedicated goroutine.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLoop starts the loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), loopQueueSize),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.done:
			return
		}
	}
}

// Do runs fn on the loop and waits for it to return. It must not be called
// from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. Functions posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.tasks <- fn:
	default:
		go func() {
			select {
			case l.tasks <- fn:
			case <-l.done:
			}
		}()
	}
}

// Close stops the loop once the running function returns.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// Session owns a Sequencer and the loop that serialises access to it.
type Session struct {
	loop *Loop
	seq  *Sequencer
}

// NewSession creates a sequencer whose host notifications are delivered on
// a new loop.
func NewSession(opts Options) *Session {
	loop := NewLoop()
	opts.Dispatch = loop.Post

	var seq *Sequencer
	// Restoring volume touches the resources, so construction runs on the loop too.
	_ = loop.Do(context.Background(), func() {
		seq = New(opts)
	})
	return &Session{loop: loop, seq: seq}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.seq.ID()
}

// Do runs fn with exclusive access to the sequencer.
func (s *Session) Do(ctx context.Context, fn func(*Sequencer)) error {
	return s.loop.Do(ctx, func() { fn(s.seq) })
}

// State returns a snapshot taken on the loop.
func (s *Session) State(ctx context.Context) (models.PlaybackState, error) {
	var state models.PlaybackState
	err := s.Do(ctx, func(seq *Sequencer) { state = seq.State() })
	return state, err
}

// Subscribe registers l; see Sequencer.Subscribe.
func (s *Session) Subscribe(l Listener) func() {
	return s.seq.Subscribe(l)
}

// Close persists the playlist, stops playback and shuts the loop down.
func (s *Session) Close(ctx context.Context) error {
	var closeErr error
	err := s.Do(ctx, func(seq *Sequencer) { closeErr = seq.Close() })
	s.loop.Close()
	if err != nil {
		return err
	}
	return closeErr
}
