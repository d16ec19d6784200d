package strategy

import "github.com/rs/zerolog"

// ProgressEvent is one push-style progress update from a strategy run.
type ProgressEvent struct {
	Phase           string         `json:"phase"`
	Message         string         `json:"message"`
	PercentComplete int            `json:"percentComplete"`
	Details         map[string]any `json:"details,omitempty"`
}

// reporter delivers progress events without ever blocking the search
// loop. A full or absent sink drops the event.
type reporter struct {
	sink   chan<- ProgressEvent
	logger zerolog.Logger
}

func newReporter(sink chan<- ProgressEvent, logger zerolog.Logger) *reporter {
	return &reporter{sink: sink, logger: logger}
}

func (r *reporter) report(event ProgressEvent) {
	if event.PercentComplete < 0 {
		event.PercentComplete = 0
	}
	if event.PercentComplete > 100 {
		event.PercentComplete = 100
	}
	r.logger.Debug().
		Str("phase", event.Phase).
		Int("percent", event.PercentComplete).
		Msg(event.Message)

	if r.sink == nil {
		return
	}
	select {
	case r.sink <- event:
	default:
		// Slow consumer; the search must not wait for it.
	}
}
