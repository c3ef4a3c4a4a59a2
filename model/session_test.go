package model

import "testing"

func TestPhase_Known(t *testing.T) {
	known := []Phase{
		PhaseUnderstanding, PhaseDesigning, PhaseValidating,
		PhaseDeploying, PhaseMonitoring, PhaseCompleted,
		PhaseFailed, PhaseRolledBack,
	}
	for _, p := range known {
		if !p.Known() {
			t.Errorf("Known(%s) = false, want true", p)
		}
	}
	if Phase("negotiating").Known() {
		t.Error("Known(negotiating) = true, want false")
	}
}

func TestPhase_Terminal(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseUnderstanding, false},
		{PhaseDesigning, false},
		{PhaseValidating, false},
		{PhaseDeploying, false},
		{PhaseMonitoring, false},
		{PhaseCompleted, true},
		{PhaseFailed, true},
		{PhaseRolledBack, true},
	}
	for _, tt := range tests {
		if got := tt.phase.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.phase, got, tt.want)
		}
	}
}

func TestPhase_CanTransitionTo_forward_only(t *testing.T) {
	order := []Phase{
		PhaseUnderstanding, PhaseDesigning, PhaseValidating,
		PhaseDeploying, PhaseMonitoring, PhaseCompleted,
	}
	for i, from := range order {
		for j, to := range order {
			want := j > i && from != PhaseCompleted
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestPhase_CanTransitionTo_failed_from_any_nonterminal(t *testing.T) {
	for _, from := range []Phase{PhaseUnderstanding, PhaseDesigning, PhaseValidating, PhaseDeploying, PhaseMonitoring} {
		if !from.CanTransitionTo(PhaseFailed) {
			t.Errorf("CanTransitionTo(%s -> failed) = false, want true", from)
		}
	}
	for _, from := range []Phase{PhaseCompleted, PhaseFailed, PhaseRolledBack} {
		if from.CanTransitionTo(PhaseFailed) {
			t.Errorf("CanTransitionTo(%s -> failed) = true, want false", from)
		}
	}
}

func TestPhase_CanTransitionTo_rolled_back(t *testing.T) {
	tests := []struct {
		from Phase
		want bool
	}{
		{PhaseUnderstanding, false},
		{PhaseDesigning, false},
		{PhaseValidating, false},
		{PhaseDeploying, true},
		{PhaseMonitoring, true},
		{PhaseFailed, false},
		{PhaseRolledBack, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(PhaseRolledBack); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> rolled_back) = %v, want %v", tt.from, got, tt.want)
		}
	}
}

func TestPhase_no_silent_reset(t *testing.T) {
	if PhaseDeploying.CanTransitionTo(PhaseUnderstanding) {
		t.Error("deploying -> understanding allowed, want refused")
	}
	if PhaseMonitoring.CanTransitionTo(PhaseDesigning) {
		t.Error("monitoring -> designing allowed, want refused")
	}
	if PhaseDesigning.CanTransitionTo(PhaseDesigning) {
		t.Error("designing -> designing allowed, want refused")
	}
}

func TestKnownTrigger(t *testing.T) {
	for _, trig := range []string{TriggerManual, TriggerSchedule, TriggerWebhook, TriggerEvent} {
		if !KnownTrigger(trig) {
			t.Errorf("KnownTrigger(%s) = false, want true", trig)
		}
	}
	if KnownTrigger("cron") {
		t.Error("KnownTrigger(cron) = true, want false")
	}
}
