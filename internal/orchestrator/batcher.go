package orchestrator

import (
	"sync"

	"github.com/rs/zerolog"
)

const (
	outcomeWindow   = 20
	shrinkBelowRate = 0.8
	growAboveRate   = 0.95
	growMinThrottle = 0.9
)

// BatchSettings bounds the adaptive batch size.
type BatchSettings struct {
	MinSize int
	MaxSize int
}

// BatchSizer picks how many photos to pack into the next provider call based
// on the rolling success rate of recent calls and the limiter throttle.
type BatchSizer struct {
	mu       sync.Mutex
	settings BatchSettings
	log      zerolog.Logger

	size     int
	outcomes []bool
}

func NewBatchSizer(settings BatchSettings, log zerolog.Logger) *BatchSizer {
	if settings.MinSize < 1 {
		settings.MinSize = 1
	}
	if settings.MaxSize < settings.MinSize {
		settings.MaxSize = settings.MinSize
	}
	return &BatchSizer{
		settings: settings,
		log:      log,
		size:     settings.MinSize,
	}
}

// Record feeds the outcome of one provider call into the rolling window.
func (s *BatchSizer) Record(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, success)
	if len(s.outcomes) > outcomeWindow {
		s.outcomes = s.outcomes[len(s.outcomes)-outcomeWindow:]
	}
}

// Next returns the batch size for the upcoming call. Any state other than a
// closed circuit forces single-photo calls. Otherwise the size moves at most
// one step per call: down when recent calls are failing, up only when calls
// are nearly all succeeding and the limiter is close to full speed.
func (s *BatchSizer) Next(state BreakerState, throttle float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state != StateClosed {
		return 1
	}

	rate := s.successRateLocked()
	switch {
	case rate < shrinkBelowRate:
		if s.size > s.settings.MinSize {
			s.size--
			s.log.Debug().Int("batch_size", s.size).Float64("success_rate", rate).
				Msg("shrinking batch size")
		}
	case rate >= growAboveRate && throttle >= growMinThrottle:
		if s.size < s.settings.MaxSize {
			s.size++
			s.log.Debug().Int("batch_size", s.size).Float64("success_rate", rate).
				Msg("growing batch size")
		}
	}
	return s.size
}

// Size returns the current batch size without adjusting it.
func (s *BatchSizer) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *BatchSizer) successRateLocked() float64 {
	if len(s.outcomes) == 0 {
		return 1.0
	}
	ok := 0
	for _, success := range s.outcomes {
		if success {
			ok++
		}
	}
	return float64(ok) / float64(len(s.outcomes))
}
