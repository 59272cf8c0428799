package workflow

import "fmt"

// Status is an order's position in the production pipeline.
type Status string

const (
	StatusValidation     Status = "Validation"
	StatusLayoutApproval Status = "Layout Approval"
	StatusPrinting       Status = "Printing"
	StatusForPickup      Status = "For Pickup"
	StatusFinished       Status = "Finished"

	// StatusDenied is a side terminal state, reachable only before printing
	// starts and never a source of further transitions.
	StatusDenied Status = "Denied"
)

// Pipeline is the canonical forward order. Orders advance one step at a time
// and never regress.
var Pipeline = []Status{
	StatusValidation,
	StatusLayoutApproval,
	StatusPrinting,
	StatusForPickup,
	StatusFinished,
}

func index(s Status) int {
	for i, p := range Pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	return s == StatusDenied || index(s) >= 0
}

// CanDeny reports whether an order may still be denied. Denial is only
// possible before layout approval is granted, i.e. before printing starts.
func CanDeny(from Status) bool {
	return from == StatusValidation || from == StatusLayoutApproval
}

// CanTransition reports whether moving from one status to another is legal:
// staying in place or advancing exactly one pipeline step. Skipping ahead and
// regressing are both illegal. Denied is terminal.
func CanTransition(from, to Status) bool {
	if from == StatusDenied {
		return false
	}
	if to == StatusDenied {
		return CanDeny(from)
	}
	i, j := index(from), index(to)
	if i < 0 || j < 0 {
		return false
	}
	return j == i || j == i+1
}

// Predecessor returns the pipeline state immediately before to. The first
// state and Denied have none.
func Predecessor(to Status) (Status, bool) {
	j := index(to)
	if j <= 0 {
		return "", false
	}
	return Pipeline[j-1], true
}

// BlockReason is the message surfaced when a transition request is rejected.
func BlockReason(from, to Status) string {
	if to == StatusDenied {
		return "Order can no longer be denied once printing has started"
	}
	if p, ok := Predecessor(to); ok {
		return fmt.Sprintf("Order must be in '%s' status first", p)
	}
	return fmt.Sprintf("Order cannot move from '%s' to '%s'", from, to)
}

// Transition validates a requested move, returning nil when it is admissible
// and a descriptive error otherwise. Callers must perform no writes and fire
// no side effects on error.
func Transition(from, to Status) error {
	if !Valid(to) {
		return fmt.Errorf("unknown status '%s'", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%s", BlockReason(from, to))
	}
	return nil
}

// Effect is a side effect implied by entering a status. Delivery is the
// caller's job; the workflow only states the policy.
type Effect int

const (
	// EffectRequestApproval: send the customer an approval request carrying
	// the layout file reference.
	EffectRequestApproval Effect = iota
	// EffectNotifyPickupReady: tell the customer the order is ready.
	EffectNotifyPickupReady
	// EffectNotifyFinished: send the completion notification.
	EffectNotifyFinished
	// EffectArchiveConversation: archive the customer conversation.
	EffectArchiveConversation
)

func (e Effect) String() string {
	switch e {
	case EffectRequestApproval:
		return "request-approval"
	case EffectNotifyPickupReady:
		return "notify-pickup-ready"
	case EffectNotifyFinished:
		return "notify-finished"
	case EffectArchiveConversation:
		return "archive-conversation"
	default:
		return "unknown"
	}
}

// Effects lists the side effects implied by entering a status.
func Effects(to Status) []Effect {
	switch to {
	case StatusLayoutApproval:
		return []Effect{EffectRequestApproval}
	case StatusForPickup:
		return []Effect{EffectNotifyPickupReady}
	case StatusFinished:
		return []Effect{EffectNotifyFinished, EffectArchiveConversation}
	}
	return nil
}
