package ports

import (
	"context"
	"testing"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// fakeVAD is a minimal VAD used to confirm the interface is implementable
// with the shape callers expect (stateful Reset, bool-returning Detect).
type fakeVAD struct {
	threshold int
	aboveCount int
}

func (f *fakeVAD) Detect(frame []byte) (bool, error) {
	energy := 0
	for _, b := range frame {
		energy += int(b)
	}
	voice := energy > f.threshold
	if voice {
		f.aboveCount++
	}
	return voice, nil
}

func (f *fakeVAD) Reset() { f.aboveCount = 0 }

func TestFakeVADSatisfiesInterface(t *testing.T) {
	var v VAD = &fakeVAD{threshold: 10}
	voice, err := v.Detect([]byte{5, 5, 5})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !voice {
		t.Fatal("expected voice true for energy above threshold")
	}
	v.Reset()
}

type fakeToolExecutor struct {
	name      string
	systemCtl bool
}

func (f *fakeToolExecutor) Name() string { return f.name }
func (f *fakeToolExecutor) Definition() types.Tool {
	return types.Tool{Name: f.name}
}
func (f *fakeToolExecutor) SystemCtl() bool { return f.systemCtl }
func (f *fakeToolExecutor) Execute(ctx context.Context, toolCtx *ToolContext, args map[string]any) (types.ActionResponse, error) {
	if f.systemCtl && toolCtx == nil {
		t := types.ActionResponse{Action: types.ActionError, Text: "missing tool context"}
		return t, nil
	}
	return types.ActionResponse{Action: types.ActionNone}, nil
}

func TestFakeToolSatisfiesInterface(t *testing.T) {
	var tool Tool = &fakeToolExecutor{name: "get_time", systemCtl: false}
	resp, err := tool.Execute(context.Background(), nil, map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Action != types.ActionNone {
		t.Fatalf("got action %v, want NONE", resp.Action)
	}
}
