package ir

// OutcomeSuccess is the receipt outcome of an accepted action. Rejected
// actions carry their rejection code as the outcome instead.
const OutcomeSuccess = "Success"

// Action is one state-transition request in the totally ordered log.
// Caller and Time come from the host's identity and time oracle.
type Action struct {
	ID            string `json:"id"`    // Content-addressed hash
	Batch         string `json:"batch"` // Submission correlation token
	Module        string `json:"module"`
	Name          string `json:"name"`
	Caller        string `json:"caller"`
	Time          uint64 `json:"time"` // Logical time (block height or ms)
	Args          Object `json:"args"`
	Seq           int64  `json:"seq"` // Position in the log, assigned by the engine
	EngineVersion string `json:"engine_version"`
}

// Event is an immutable record of one state change.
type Event struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Fields Object `json:"fields"`
}

// Receipt is the outcome of applying an Action. Rejected actions have no
// events and leave StateRoot equal to the previous receipt's.
type Receipt struct {
	ID        string  `json:"id"` // Content-addressed hash
	ActionID  string  `json:"action_id"`
	Seq       int64   `json:"seq"`
	Outcome   string  `json:"outcome"`
	Result    Object  `json:"result"`
	Events    []Event `json:"events"`
	StateRoot string  `json:"state_root"`
}

// Accepted reports whether the action committed.
func (r Receipt) Accepted() bool {
	return r.Outcome == OutcomeSuccess
}

// ToObject renders the event as a Value for hashing and traces.
func (e Event) ToObject() Object {
	fields := e.Fields
	if fields == nil {
		fields = Object{}
	}
	return Object{
		"module": String(e.Module),
		"name":   String(e.Name),
		"fields": fields,
	}
}

// EventsToArray renders events in emission order.
func EventsToArray(events []Event) Array {
	arr := make(Array, len(events))
	for i, e := range events {
		arr[i] = e.ToObject()
	}
	return arr
}

// LogEntry is one position in the action log.
type LogEntry struct {
	Action  Action  `json:"action"`
	Receipt Receipt `json:"receipt"`
}
