package paymetrics

import (
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/target"
)

// Recorder receives engine events for export.
type Recorder interface {
	// ObserveClassification counts a published classification.
	ObserveClassification(kind target.Kind)

	// ObserveAttempt counts an attempt reaching a terminal state.
	ObserveAttempt(rail target.Rail, state string)

	// ObservePoll counts a status poll sent to the node.
	ObservePoll(rail target.Rail)

	// ObserveQuote counts a fee quote and how long it took.
	ObserveQuote(rail target.Rail, d time.Duration)
}

// noopRecorder discards every event.
type noopRecorder struct{}

// NewNoop returns a Recorder that discards every event.
func NewNoop() Recorder {
	return noopRecorder{}
}

func (noopRecorder) ObserveClassification(target.Kind)       {}
func (noopRecorder) ObserveAttempt(target.Rail, string)      {}
func (noopRecorder) ObservePoll(target.Rail)                 {}
func (noopRecorder) ObserveQuote(target.Rail, time.Duration) {}
