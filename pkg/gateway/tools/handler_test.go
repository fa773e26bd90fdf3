package tools

import (
	"context"
	"testing"

	"github.com/relaytone/xiaozhi-engine/pkg/core/di"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type fakeTool struct {
	name      string
	systemCtl bool
	resp      types.ActionResponse
	sawCtx    *ports.ToolContext
}

func (f *fakeTool) Name() string                 { return f.name }
func (f *fakeTool) Definition() types.Tool        { return types.Tool{Name: f.name} }
func (f *fakeTool) SystemCtl() bool               { return f.systemCtl }
func (f *fakeTool) Execute(ctx context.Context, toolCtx *ports.ToolContext, args map[string]any) (types.ActionResponse, error) {
	f.sawCtx = toolCtx
	return f.resp, nil
}

func TestExecuteUnknownToolReturnsError(t *testing.T) {
	h := New(di.New(), nil)
	resp := h.Execute(context.Background(), "s1", types.ToolCall{ID: "1", Name: "nope"})
	if resp.Action != types.ActionError {
		t.Fatalf("got action %v, want ERROR", resp.Action)
	}
}

func TestExecuteSystemCtlToolReceivesContext(t *testing.T) {
	h := New(di.New(), nil)
	tool := &fakeTool{name: "reload_agent", systemCtl: true, resp: types.ActionResponse{Action: types.ActionNone}}
	h.RegistryFor("s1").Register(tool)

	h.Execute(context.Background(), "s1", types.ToolCall{ID: "1", Name: "reload_agent"})

	if tool.sawCtx == nil || tool.sawCtx.SessionID != "s1" {
		t.Fatal("expected a SYSTEM_CTL tool to receive a ToolContext")
	}
}

func TestExecuteUserLevelToolReceivesNoContext(t *testing.T) {
	h := New(di.New(), nil)
	tool := &fakeTool{name: "get_time", systemCtl: false, resp: types.ActionResponse{Action: types.ActionNone}}
	h.RegistryFor("s1").Register(tool)

	h.Execute(context.Background(), "s1", types.ToolCall{ID: "1", Name: "get_time"})

	if tool.sawCtx != nil {
		t.Fatal("expected a user-level tool to receive a nil ToolContext")
	}
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	h := New(di.New(), nil)
	a := &fakeTool{name: "a", resp: types.ActionResponse{Action: types.ActionRespond, Text: "A"}}
	b := &fakeTool{name: "b", resp: types.ActionResponse{Action: types.ActionRespond, Text: "B"}}
	h.RegistryFor("s1").Register(a)
	h.RegistryFor("s1").Register(b)

	results := h.ExecuteAll(context.Background(), "s1", []types.ToolCall{
		{ID: "1", Name: "a"}, {ID: "2", Name: "b"},
	})

	if len(results) != 2 || results[0].ToolCallID != "1" || results[1].ToolCallID != "2" {
		t.Fatalf("expected results in call order, got %+v", results)
	}
}
