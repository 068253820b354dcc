package watch

import (
	"sync"
	"time"
)

// debouncer runs fn once no schedule call has happened for delay.
type debouncer struct {
	delay time.Duration
	fn    func()
	done  <-chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) schedule() {
	select {
	case <-d.done:
		return
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		select {
		case <-d.done:
			return
		default:
		}

		d.fn()

		d.mu.Lock()
		if d.timer == timer {
			d.timer = nil
		}
		d.mu.Unlock()
	})

	d.timer = timer
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
