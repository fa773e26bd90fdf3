package gemini

import (
	"encoding/json"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func buildRequest(systemPrompt string, history []types.Message, tools []types.Tool) ([]byte, error) {
	req := geminiRequest{}

	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	for _, m := range history {
		req.Contents = append(req.Contents, messageToContent(m))
	}

	if len(tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(tools))
		for _, t := range tools {
			params, err := json.Marshal(t.Parameters)
			if err != nil {
				return nil, err
			}
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	return json.Marshal(req)
}

func messageToContent(m types.Message) geminiContent {
	role := "user"
	switch m.Role {
	case types.RoleAssistant:
		role = "model"
	case types.RoleTool:
		role = "function"
	case types.RoleSystem:
		role = "user"
	}

	var parts []geminiPart
	if m.Text != "" {
		parts = append(parts, geminiPart{Text: m.Text})
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments}})
	}
	if m.Role == types.RoleTool {
		parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{
			Name:     m.ToolCallID,
			Response: map[string]any{"result": m.Text},
		}})
	}
	if len(parts) == 0 {
		parts = []geminiPart{{Text: ""}}
	}

	return geminiContent{Role: role, Parts: parts}
}
