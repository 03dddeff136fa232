package progress

import (
	"time"

	"github.com/google/uuid"
)

// Tracker stamps events with the run id and the current UTC time before
// handing them to an Emitter. A nil Tracker drops everything.
type Tracker struct {
	emitter Emitter
	runID   [16]byte
	now     func() time.Time
}

// NewTracker binds emitter to runID.
func NewTracker(emitter Emitter, runID uuid.UUID) *Tracker {
	return &Tracker{
		emitter: emitter,
		runID:   UUIDToBytes(runID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunID returns the id stamped on every event.
func (t *Tracker) RunID() uuid.UUID {
	if t == nil {
		return uuid.Nil
	}
	return uuid.UUID(t.runID)
}

// Emit fills RunID and TS and forwards the event.
func (t *Tracker) Emit(evt Event) {
	if t == nil || t.emitter == nil {
		return
	}
	evt.RunID = t.runID
	if evt.TS.IsZero() {
		evt.TS = t.now()
	}
	t.emitter.Emit(evt)
}
