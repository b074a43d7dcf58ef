package workspace

import (
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/events"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

// Bus fans editor document notifications out to subscribers. Host
// integrations publish into the bus as documents are opened, saved and
// closed; the change observer subscribes while tracking is active.
type Bus struct {
	Opened   events.Emitter[shared.DocumentEvent]
	WillSave events.Emitter[shared.DocumentEvent]
	Saved    events.Emitter[shared.DocumentEvent]
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}
