package dialogue

import (
	"context"
	"testing"
)

func testScript() Script {
	return Script{
		Greeting: "Hello, thanks for taking our call.",
		Rules: []Rule{
			{Name: "interest_rate", Keywords: []string{"interest", "rate"}, Reply: "Our rate starts at nine percent."},
			{Name: "loan_amount", Keywords: []string{"amount", "how much"}, Reply: "You can borrow up to twenty lakhs."},
		},
		Fallback: "Let me connect you with an agent for that.",
	}
}

func TestScriptStepMatchesFirstRule(t *testing.T) {
	step := NewScriptStep(testScript())

	reply, err := step.Respond(context.Background(), "What is the INTEREST rate on the loan amount?")
	if err != nil {
		t.Fatalf("expected respond to succeed, got %v", err)
	}
	if reply != "Our rate starts at nine percent." {
		t.Fatalf("expected the first matching rule to win, got %q", reply)
	}
}

func TestScriptStepFallsBack(t *testing.T) {
	step := NewScriptStep(testScript())

	reply, err := step.Respond(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("expected respond to succeed, got %v", err)
	}
	if reply != "Let me connect you with an agent for that." {
		t.Fatalf("expected the fallback reply, got %q", reply)
	}
}

func TestScriptStepSnapshotsTheScript(t *testing.T) {
	script := testScript()
	step := NewScriptStep(script)

	script.Rules[0].Reply = "mutated"
	script.Fallback = "mutated"

	reply, err := step.Respond(context.Background(), "what is the rate")
	if err != nil {
		t.Fatalf("expected respond to succeed, got %v", err)
	}
	if reply != "Our rate starts at nine percent." {
		t.Fatalf("expected the step to keep its own copy of the script, got %q", reply)
	}
}
