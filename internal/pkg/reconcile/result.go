package reconcile

type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionNoop      Action = "noop"
	ActionDuplicate Action = "duplicate"
)

// Result describes what an applied event changed.
type Result struct {
	Provider   string `json:"provider"`
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   uint   `json:"entity_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Action     Action `json:"action"`
	Reason     string `json:"reason,omitempty"`
}

// Noop builds a result for an event that was accepted but changed nothing.
func Noop(provider, eventType, reason string) Result {
	return Result{Provider: provider, EventType: eventType, Action: ActionNoop, Reason: reason}
}

func (r Result) Changed() bool {
	return r.Action == ActionCreated || r.Action == ActionUpdated
}
