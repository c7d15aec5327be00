// Package presence turns microphone levels into speaking on/off changes.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultThreshold is the average level, on a 0-255 scale, above which
	// the user counts as speaking.
	DefaultThreshold = 30
	DefaultInterval  = 50 * time.Millisecond
)

// LevelSource yields the current average input level on a 0-255 scale.
type LevelSource interface {
	Level() (float64, error)
	Close() error
}

type Options struct {
	Threshold float64
	Interval  time.Duration
	// OnChange is called from the sampling goroutine whenever the speaking
	// state flips. It must not block.
	OnChange func(speaking bool)
	Logger   *slog.Logger
}

// Detector samples a LevelSource on a ticker while unmuted.
type Detector struct {
	src  LevelSource
	opts Options

	mu       sync.Mutex
	muted    bool
	speaking bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDetector(src LevelSource, opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.OnChange == nil {
		opts.OnChange = func(bool) {}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Detector{src: src, opts: opts}
}

// Start begins sampling unless the detector is muted or stopped.
func (d *Detector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.muted || d.cancel != nil {
		return
	}
	d.startLocked()
}

func (d *Detector) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(ctx, d.done)
}

// SetMuted stops sampling and reports silence while muted; unmuting
// resumes sampling.
func (d *Detector) SetMuted(muted bool) {
	d.mu.Lock()
	if d.stopped || d.muted == muted {
		d.mu.Unlock()
		return
	}
	d.muted = muted
	if !muted {
		d.startLocked()
		d.mu.Unlock()
		return
	}
	wait := d.detachLocked()
	d.mu.Unlock()

	wait()
	d.set(false)
}

// Stop ends sampling for good and releases the source.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	wait := d.detachLocked()
	d.mu.Unlock()

	wait()
	d.set(false)
	if err := d.src.Close(); err != nil {
		d.opts.Logger.Debug("close level source", "error", err)
	}
}

func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// detachLocked takes ownership of the running sampler, if any, and returns
// a func that cancels it and waits for it to exit. Caller holds d.mu.
func (d *Detector) detachLocked() func() {
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	return func() {
		if cancel != nil {
			cancel()
			<-done
		}
	}
}

func (d *Detector) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level, err := d.src.Level()
			if err != nil {
				d.opts.Logger.Debug("sample level", "error", err)
				continue
			}
			d.set(level > d.opts.Threshold)
		}
	}
}

func (d *Detector) set(speaking bool) {
	d.mu.Lock()
	if d.muted || d.stopped {
		speaking = false
	}
	if d.speaking == speaking {
		d.mu.Unlock()
		return
	}
	d.speaking = speaking
	d.mu.Unlock()

	d.opts.OnChange(speaking)
}
