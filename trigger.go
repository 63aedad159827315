package smsbox

// Event is an input to the dispatcher. All events are processed one at a
// time, in submission order, by a single worker.
type Event interface {
	eventKind() string
}

// MessageReceived carries the parts of one incoming short message.
type MessageReceived struct {
	Parts []PDU
}

// SendResult reports the outcome of a send attempt.
// TargetRef is the ID of the Outbox record created for the attempt.
type SendResult struct {
	Code      ResultCode
	TargetRef string
}

// BootCompleted is submitted once after the process starts.
type BootCompleted struct{}

// ConnectivityChanged reports a new radio service state.
type ConnectivityChanged struct {
	State ServiceState
}

// DrainRequested asks the worker to send the oldest queued message.
// Enqueue and Resend submit it after storing their record.
type DrainRequested struct{}

func (MessageReceived) eventKind() string     { return "received" }
func (SendResult) eventKind() string          { return "send_result" }
func (BootCompleted) eventKind() string       { return "boot" }
func (ConnectivityChanged) eventKind() string { return "connectivity" }
func (DrainRequested) eventKind() string      { return "drain" }

// EventKind returns the short name of an event, used in logs and metrics.
func EventKind(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.eventKind()
}
