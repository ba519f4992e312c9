package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// mutationMetrics collects timing and outcome fields for one request and
// logs them as a single structured line.
type mutationMetrics struct {
	logger     *log.Logger
	route      string
	action     string
	start      time.Time
	attempts   int
	errorStage string
}

func newMutationMetrics(logger *log.Logger, route, action string) *mutationMetrics {
	return &mutationMetrics{
		logger: logger,
		route:  route,
		action: action,
		start:  time.Now(),
	}
}

func (m *mutationMetrics) SetAction(action string) {
	if action != "" {
		m.action = action
	}
}

// SetAttempts records how many extra read-modify-write rounds a mutation
// needed before committing.
func (m *mutationMetrics) SetAttempts(attempts int) {
	if attempts > 0 {
		m.attempts = attempts
	}
}

func (m *mutationMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *mutationMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    m.route,
		"action":   m.action,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.attempts > 0 {
		fields["conflict_retries"] = m.attempts
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("mutation.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
