package presence

import (
	"sync"
	"time"
)

// ManualSource is a LevelSource driven by the caller, used for push-to-talk
// when no microphone capture is available.
type ManualSource struct {
	mu    sync.Mutex
	level float64
	timer *time.Timer
	gen   uint64
}

func NewManualSource() *ManualSource {
	return &ManualSource{}
}

func (s *ManualSource) Level() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// Set fixes the level until the next Set or Pulse.
func (s *ManualSource) Set(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.level = level
}

// Pulse raises the level to full scale for d, extending any pulse in
// progress.
func (s *ManualSource) Pulse(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.level = 255
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.level = 0
		s.timer = nil
	})
}

func (s *ManualSource) Close() error {
	s.Set(0)
	return nil
}

func (s *ManualSource) stopTimer() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
