package scheduler

import (
	"errors"
	"time"

	"repod/internal/task/engine"
	logx "repod/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(key JobKey, err error) {
	// A firing while the previous run is still going is normal: it is skipped.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("job firing skipped: previous run still in progress", logx.String("job", string(key)))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[key]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[key] = now
	s.enqMu.Unlock()

	s.log.Warn("job failed to enqueue", logx.String("job", string(key)), logx.Err(err))
}
