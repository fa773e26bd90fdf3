// Package intent implements IntentService: selects the recognition mode
// declared in AgentConfig and, for intent_llm mode, performs a distinct LLM
// call to classify a structured intent before dialogue proceeds.
package intent

import (
	"context"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// Result is the outcome of intent recognition: either "go straight to
// dialogue" (nointent and function_call both resolve this way — function_call
// folds recognition into DialogueService's own tool-calling LLM turn) or a
// structured classification from an intent_llm call.
type Result struct {
	Mode      types.IntentMode
	Intent    ports.IntentResult
	HasIntent bool
}

// Service resolves AgentConfig.IntentMode for a turn.
type Service struct {
	intentLLM ports.Intent // nil when no intent_llm provider is configured
}

// New constructs a Service. intentLLM may be nil; it is only consulted
// when AgentConfig.IntentMode == IntentLLM.
func New(intentLLM ports.Intent) *Service {
	return &Service{intentLLM: intentLLM}
}

// Recognize resolves the mode declared in agent and, for intent_llm, runs
// the classification call.
func (s *Service) Recognize(ctx context.Context, agent types.AgentConfig, text string, history []types.Message) (Result, error) {
	switch agent.IntentMode {
	case types.IntentLLM:
		if s.intentLLM == nil {
			return Result{Mode: types.IntentNone}, nil
		}
		res, err := s.intentLLM.Recognize(ctx, text, history)
		if err != nil {
			return Result{}, err
		}
		return Result{Mode: types.IntentLLM, Intent: res, HasIntent: res.Name != ""}, nil
	case types.IntentFunctionCall:
		// Recognition happens inline inside DialogueService via tool
		// schemas; this Service has nothing further to do.
		return Result{Mode: types.IntentFunctionCall}, nil
	default:
		return Result{Mode: types.IntentNone}, nil
	}
}
