// Package dialogue selects the reply text for a finalised caller utterance.
//
// The bridge treats reply selection as an injected collaborator: a [Step] is
// a pure function from transcript to reply text. The scripted implementation
// here covers pitch-script/FAQ flows; an LLM-backed implementation lives in
// the llm subpackage.
package dialogue

import (
	"context"
	"strings"

	"github.com/jinzhu/copier"
)

// Step maps one final transcript to the reply text spoken back to the caller.
type Step interface {
	Respond(ctx context.Context, transcript string) (reply string, err error)
}

// Rule matches an utterance by keyword and names the reply for it.
type Rule struct {
	// Name identifies the rule, used as the intent label by the LLM step.
	Name     string
	Keywords []string
	Reply    string
}

// Script is the immutable per-session dialogue configuration: the greeting
// spoken when the call starts, the ordered match rules, and the fallback
// reply when nothing matches.
type Script struct {
	Greeting string
	Rules    []Rule
	Fallback string
}

// ScriptStep answers from a fixed script. First rule with a matching keyword
// wins; matching is case-insensitive substring containment.
type ScriptStep struct {
	script Script
}

func NewScriptStep(script Script) *ScriptStep {
	// Snapshot the script so later mutation by the caller cannot leak in.
	var snapshot Script
	copier.CopyWithOption(&snapshot, &script, copier.Option{DeepCopy: true})
	return &ScriptStep{script: snapshot}
}

func (s *ScriptStep) Respond(_ context.Context, transcript string) (string, error) {
	lowered := strings.ToLower(transcript)
	for _, rule := range s.script.Rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return rule.Reply, nil
			}
		}
	}
	return s.script.Fallback, nil
}
