package config

import (
	"context"
	"testing"

	gwconfig "github.com/relaytone/xiaozhi-engine/pkg/gateway/config"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

func TestAgentConfigForDeviceIsDeviceAgnostic(t *testing.T) {
	p := New(gwconfig.Config{
		AgentID:           "default",
		AgentSystemPrompt: "be nice",
		AgentVoiceID:      "voice-1",
		AgentIntentMode:   "nointent",
		VADProviderName:   "energy",
		ASRProviderName:   "reference",
		TTSProviderName:   "reference",
		LLMProviderName:   "gemini",
		DefaultMaxRecursionDepth: 5,
		MemoryBackend:     gwconfig.MemoryBackendNone,
	})

	a, err := p.AgentConfigForDevice(context.Background(), "device-1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.AgentConfigForDevice(context.Background(), "device-2")
	if err != nil {
		t.Fatal(err)
	}
	if a.AgentID != "default" || b.AgentID != "default" {
		t.Fatalf("expected the same static agent regardless of device: %+v / %+v", a, b)
	}
	if a.Memory.Name != "none" {
		t.Fatalf("Memory binding = %q, want none", a.Memory.Name)
	}
	if a.IntentMode != types.IntentNone {
		t.Fatalf("IntentMode = %q, want nointent", a.IntentMode)
	}
}

func TestAgentConfigResolvesConfiguredMemoryBackend(t *testing.T) {
	p := New(gwconfig.Config{MemoryBackend: gwconfig.MemoryBackendRedis, DefaultMaxRecursionDepth: 5})
	a, err := p.AgentConfigForDevice(context.Background(), "device-1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Memory.Name != "redis" {
		t.Fatalf("Memory binding = %q, want redis", a.Memory.Name)
	}
}
