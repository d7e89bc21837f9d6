package geolocation

import (
	"sync"
	"time"
)

// Sample is a single position fix
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Reading is either a sample or a platform error (Code != 0)
type Reading struct {
	Sample  Sample `json:"sample"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WatchOptions is passed to the platform when sampling starts
type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration // per-fix timeout; zero disables it
	MaximumAge   time.Duration
}

// Watcher is a continuous position-sampling capability.
// Readings arrive until stop is called; stop must be safe to call once.
type Watcher interface {
	Available() bool
	Watch(opts WatchOptions) (readings <-chan Reading, stop func(), err error)
}

// ReplayWatcher replays a fixed script of readings, one per Interval
type ReplayWatcher struct {
	Readings []Reading
	Interval time.Duration
}

// NewReplayWatcher creates a watcher over the given samples
func NewReplayWatcher(samples []Sample, interval time.Duration) *ReplayWatcher {
	readings := make([]Reading, len(samples))
	for i, s := range samples {
		readings[i] = Reading{Sample: s}
	}
	return &ReplayWatcher{Readings: readings, Interval: interval}
}

// Available always returns true
func (w *ReplayWatcher) Available() bool {
	return true
}

// Watch starts replaying. The channel is closed once the script is exhausted.
func (w *ReplayWatcher) Watch(opts WatchOptions) (<-chan Reading, func(), error) {
	out := make(chan Reading)
	done := make(chan struct{})

	go func() {
		defer close(out)
		var timer *time.Timer
		for i, r := range w.Readings {
			if i > 0 && w.Interval > 0 {
				if timer == nil {
					timer = time.NewTimer(w.Interval)
					defer timer.Stop()
				} else {
					timer.Reset(w.Interval)
				}
				select {
				case <-timer.C:
				case <-done:
					return
				}
			}
			select {
			case out <- r:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }, nil
}

// FeedWatcher fans pushed readings out to every active subscription.
// It emits a CodeTimeout reading when no fix arrives within WatchOptions.Timeout.
type FeedWatcher struct {
	mu   sync.Mutex
	subs map[int]*feedSub
	next int
}

type feedSub struct {
	in   chan Reading
	out  chan Reading
	done chan struct{}
}

// NewFeedWatcher creates an empty feed
func NewFeedWatcher() *FeedWatcher {
	return &FeedWatcher{subs: make(map[int]*feedSub)}
}

// Available always returns true
func (w *FeedWatcher) Available() bool {
	return true
}

// Push delivers a sample to all subscriptions. Slow subscribers drop readings.
func (w *FeedWatcher) Push(s Sample) {
	w.publish(Reading{Sample: s})
}

// Fail delivers a platform error to all subscriptions
func (w *FeedWatcher) Fail(code int, msg string) {
	w.publish(Reading{Code: code, Message: msg})
}

// Active returns the number of live subscriptions
func (w *FeedWatcher) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

func (w *FeedWatcher) publish(r Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subs {
		select {
		case sub.in <- r:
		default:
		}
	}
}

// Watch subscribes to the feed
func (w *FeedWatcher) Watch(opts WatchOptions) (<-chan Reading, func(), error) {
	sub := &feedSub{
		in:   make(chan Reading, 16),
		out:  make(chan Reading),
		done: make(chan struct{}),
	}

	w.mu.Lock()
	id := w.next
	w.next++
	w.subs[id] = sub
	w.mu.Unlock()

	go sub.run(opts.Timeout)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.out, stop, nil
}

func (s *feedSub) run(timeout time.Duration) {
	defer close(s.out)

	var timeoutC <-chan time.Time
	var timer *time.Timer
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		var r Reading
		select {
		case <-s.done:
			return
		case r = <-s.in:
		case <-timeoutC:
			r = Reading{Code: CodeTimeout, Message: "no position fix within timeout"}
		}

		select {
		case s.out <- r:
		case <-s.done:
			return
		}
		if timer != nil {
			timer.Reset(timeout)
		}
	}
}
