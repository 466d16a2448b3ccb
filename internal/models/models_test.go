package models

import (
	"testing"
	"time"
)

func TestRegistryCoversAllKinds(t *testing.T) {
	kinds := []NudgeKind{
		NudgeCrisis, NudgeBurnoutCritical, NudgeBurnoutHigh,
		NudgeAnticipatoryImminent, NudgeAnticipatoryToday,
		NudgeSocialIsolationHigh, NudgeSocialIsolationModerate,
		NudgeEventReflection, NudgeValueCheck, NudgeGapPrompt,
		NudgeSocialReconnection, NudgePositiveReinforcement,
	}
	for _, kind := range kinds {
		attrs, ok := AttributesFor(kind)
		if !ok {
			t.Errorf("kind %s missing from registry", kind)
			continue
		}
		if attrs.Priority <= 0 && kind != NudgeCrisis {
			t.Errorf("kind %s has non-positive priority %d", kind, attrs.Priority)
		}
	}
}

func TestGapPromptPriorityBetweenValueCheckAndAnticipatoryToday(t *testing.T) {
	// Regression guard for priority table edits.
	gap, _ := AttributesFor(NudgeGapPrompt)
	value, _ := AttributesFor(NudgeValueCheck)
	today, _ := AttributesFor(NudgeAnticipatoryToday)
	if !(value.Priority < gap.Priority && gap.Priority < today.Priority) {
		t.Errorf("expected VALUE_CHECK (%d) < GAP_PROMPT (%d) < ANTICIPATORY_TODAY (%d)",
			value.Priority, gap.Priority, today.Priority)
	}
}

func TestGapPromptCooldownIsExactly24Hours(t *testing.T) {
	gap, _ := AttributesFor(NudgeGapPrompt)
	if gap.Cooldown.Milliseconds() != 86400000 {
		t.Errorf("expected GAP_PROMPT cooldown of 86400000 ms, got %d", gap.Cooldown.Milliseconds())
	}
}

func TestCriticalThresholdMatchesBurnoutCritical(t *testing.T) {
	critical, _ := AttributesFor(NudgeBurnoutCritical)
	if CriticalPriorityThreshold != critical.Priority {
		t.Errorf("threshold %d does not match BURNOUT_CRITICAL priority %d",
			CriticalPriorityThreshold, critical.Priority)
	}
	crisis, _ := AttributesFor(NudgeCrisis)
	if crisis.Priority < CriticalPriorityThreshold {
		t.Error("CRISIS must meet the critical bypass threshold")
	}
}

func TestIsValidNudgeKind(t *testing.T) {
	if !IsValidNudgeKind(NudgeGapPrompt) {
		t.Error("GAP_PROMPT should be valid")
	}
	if IsValidNudgeKind("NOT_A_KIND") {
		t.Error("unknown kind should be invalid")
	}
}

func TestIsValidNudgeResponseType(t *testing.T) {
	for _, rt := range []NudgeResponseType{ResponseDismissed, ResponseActed, ResponsePostponed} {
		if !IsValidNudgeResponseType(rt) {
			t.Errorf("%s should be valid", rt)
		}
	}
	if IsValidNudgeResponseType("ignored") {
		t.Error("unknown response type should be invalid")
	}
}

func TestCandidateSetIsEmpty(t *testing.T) {
	var set CandidateSet
	if !set.IsEmpty() {
		t.Error("zero-value candidate set should be empty")
	}
	set.GapPrompt = &GapPromptCandidate{}
	if set.IsEmpty() {
		t.Error("set with a gap-prompt candidate should not be empty")
	}
}

func TestEngagementKey(t *testing.T) {
	rec := InsightEngagementRecord{InsightID: "ins-1", SessionID: "sess-9", Timestamp: time.Now()}
	if rec.EngagementKey() != "ins-1_sess-9" {
		t.Errorf("unexpected engagement key %q", rec.EngagementKey())
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := SuccessWithMessage("done", map[string]int{"n": 1})
	if resp.Status != string(APIStatusOK) || resp.Message != "done" {
		t.Errorf("unexpected success response: %+v", resp)
	}
	if Error("boom").Status != string(APIStatusError) {
		t.Error("expected error status")
	}
	if Recorded().Status != string(APIStatusRecorded) {
		t.Error("expected recorded status")
	}
	if Degraded("history write failed").Status != string(APIStatusDegraded) {
		t.Error("expected degraded status")
	}
}
