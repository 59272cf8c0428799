package workflow

import (
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"advance_one_step", StatusValidation, StatusLayoutApproval, true},
		{"advance_from_approval", StatusLayoutApproval, StatusPrinting, true},
		{"advance_to_pickup", StatusPrinting, StatusForPickup, true},
		{"advance_to_finished", StatusForPickup, StatusFinished, true},
		{"skip_a_step", StatusValidation, StatusPrinting, false},
		{"skip_to_finished", StatusValidation, StatusFinished, false},
		{"no_regression", StatusPrinting, StatusLayoutApproval, false},
		{"no_regression_from_finished", StatusFinished, StatusForPickup, false},
		{"noop_allowed", StatusFinished, StatusFinished, true},
		{"noop_mid_pipeline", StatusPrinting, StatusPrinting, true},
		{"deny_from_validation", StatusValidation, StatusDenied, true},
		{"deny_from_layout_approval", StatusLayoutApproval, StatusDenied, true},
		{"deny_after_printing_started", StatusPrinting, StatusDenied, false},
		{"deny_when_finished", StatusFinished, StatusDenied, false},
		{"denied_is_terminal", StatusDenied, StatusValidation, false},
		{"denied_cannot_advance", StatusDenied, StatusLayoutApproval, false},
		{"unknown_target", StatusValidation, Status("Shipped"), false},
		{"unknown_source", Status("Shipped"), StatusValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransitionErrorNamesPredecessor(t *testing.T) {
	err := Transition(StatusValidation, StatusPrinting)
	if err == nil {
		t.Fatal("Expected an error for a skipped step")
	}
	want := "Order must be in 'Layout Approval' status first"
	if err.Error() != want {
		t.Errorf("Transition error = %q, want %q", err.Error(), want)
	}
}

func TestTransitionAdmissible(t *testing.T) {
	if err := Transition(StatusLayoutApproval, StatusPrinting); err != nil {
		t.Errorf("Expected admissible transition, got %v", err)
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	err := Transition(StatusValidation, Status("Shipped"))
	if err == nil {
		t.Fatal("Expected an error for an unknown status")
	}
	if !strings.Contains(err.Error(), "unknown status") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDenyBlockReason(t *testing.T) {
	err := Transition(StatusPrinting, StatusDenied)
	if err == nil {
		t.Fatal("Expected denial to be rejected after printing started")
	}
	if !strings.Contains(err.Error(), "no longer be denied") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestEffects(t *testing.T) {
	tests := []struct {
		name string
		to   Status
		want []Effect
	}{
		{"layout_approval_requests_approval", StatusLayoutApproval, []Effect{EffectRequestApproval}},
		{"pickup_notifies_customer", StatusForPickup, []Effect{EffectNotifyPickupReady}},
		{"finished_notifies_and_archives", StatusFinished, []Effect{EffectNotifyFinished, EffectArchiveConversation}},
		{"printing_has_no_effects", StatusPrinting, nil},
		{"validation_has_no_effects", StatusValidation, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Effects(tt.to)
			if len(got) != len(tt.want) {
				t.Fatalf("Effects(%q) = %v, want %v", tt.to, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Effects(%q)[%d] = %v, want %v", tt.to, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPipelineCoversEveryForwardStep(t *testing.T) {
	for i := 0; i < len(Pipeline)-1; i++ {
		if !CanTransition(Pipeline[i], Pipeline[i+1]) {
			t.Errorf("Expected %q -> %q to be legal", Pipeline[i], Pipeline[i+1])
		}
	}
}
