// Package llmintent adapts a ports.LLM into ports.Intent: it offers the
// model a fixed "match_intent" tool schema built from a configured intent
// catalogue and treats a tool call as a match, silence as no intent.
package llmintent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// Intent describes one recognizable intent for the classification prompt.
type Intent struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema for this intent's arguments
}

const systemPromptPreamble = "You classify the user's utterance against a fixed set of intents. " +
	"Call match_intent only when the utterance clearly matches one of the described intents. " +
	"If nothing matches, respond with no tool call."

// Adapter implements ports.Intent on top of an arbitrary ports.LLM,
// grounded on the same Stream/Next consumption loop dialogue.Service uses.
type Adapter struct {
	llm     ports.LLM
	schema  types.Tool
	intents map[string]Intent
}

// New builds an Adapter that recognizes any of intents via llm.
func New(llm ports.LLM, intents []Intent) *Adapter {
	byName := make(map[string]Intent, len(intents))
	properties := make(map[string]any, len(intents))
	for _, in := range intents {
		byName[in.Name] = in
		properties[in.Name] = map[string]any{
			"type":        "object",
			"description": in.Description,
			"properties":  in.Parameters,
		}
	}

	schema := types.Tool{
		Name:        "match_intent",
		Description: "Report the matched intent name and its arguments.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"intent": map[string]any{
					"type": "string",
					"enum": intentNames(intents),
				},
				"arguments": map[string]any{
					"type":       "object",
					"properties": properties,
				},
			},
			"required": []string{"intent"},
		},
	}

	return &Adapter{llm: llm, schema: schema, intents: byName}
}

func intentNames(intents []Intent) []string {
	names := make([]string, 0, len(intents))
	for _, in := range intents {
		names = append(names, in.Name)
	}
	return names
}

// Recognize runs one classification call against text and history, returning
// a zero-value, no-error result when the model declines to match anything.
func (a *Adapter) Recognize(ctx context.Context, text string, history []types.Message) (ports.IntentResult, error) {
	turn := append(append([]types.Message{}, history...), types.Message{Role: types.RoleUser, Text: text})

	stream, err := a.llm.Stream(ctx, systemPromptPreamble, turn, []types.Tool{a.schema})
	if err != nil {
		return ports.IntentResult{}, fmt.Errorf("llmintent: starting classification stream: %w", err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ports.IntentResult{}, nil
			}
			return ports.IntentResult{}, fmt.Errorf("llmintent: reading classification stream: %w", err)
		}
		if ev.Kind != types.StreamToolCall || ev.ToolCall == nil {
			continue
		}
		return decodeMatch(ev.ToolCall.Arguments), nil
	}
}

func decodeMatch(args map[string]any) ports.IntentResult {
	name, _ := args["intent"].(string)
	if name == "" {
		return ports.IntentResult{}
	}
	params, _ := args["arguments"].(map[string]any)
	return ports.IntentResult{Name: name, Params: params}
}
