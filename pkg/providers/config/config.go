// Package config implements the engine's ports.Config: a single static
// AgentConfig shared by every device, negotiated from process
// configuration. A multi-tenant deployment with per-device provisioning
// swaps this for an implementation backed by a relational store; nothing
// upstream of the port cares which one is wired in.
package config

import (
	"context"

	gwconfig "github.com/relaytone/xiaozhi-engine/pkg/gateway/config"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type StaticProvider struct {
	agent types.AgentConfig
}

// New builds the single AgentConfig every device negotiates, from process
// configuration.
func New(cfg gwconfig.Config) *StaticProvider {
	memoryProvider := "none"
	switch cfg.MemoryBackend {
	case gwconfig.MemoryBackendRedis, gwconfig.MemoryBackendQdrant:
		memoryProvider = string(cfg.MemoryBackend)
	}

	agent := types.AgentConfig{
		AgentID: cfg.AgentID,

		VAD:    types.ProviderBinding{Name: cfg.VADProviderName},
		ASR:    types.ProviderBinding{Name: cfg.ASRProviderName},
		TTS:    types.ProviderBinding{Name: cfg.TTSProviderName},
		LLM:    types.ProviderBinding{Name: cfg.LLMProviderName},
		Memory: types.ProviderBinding{Name: memoryProvider},

		SystemPrompt: cfg.AgentSystemPrompt,
		IntentMode:   types.IntentMode(cfg.AgentIntentMode),
		VoiceID:      cfg.AgentVoiceID,

		StreamingText:  true,
		StreamingAudio: true,

		MaxRecursionDepth: cfg.DefaultMaxRecursionDepth,
	}.WithDefaults()

	return &StaticProvider{agent: agent}
}

// AgentConfigForDevice ignores deviceID: every device negotiates the same
// process-wide agent in this deployment.
func (p *StaticProvider) AgentConfigForDevice(ctx context.Context, deviceID string) (types.AgentConfig, error) {
	return p.agent, nil
}
