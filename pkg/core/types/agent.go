package types

// IntentMode selects how IntentService routes a recognized utterance.
type IntentMode string

const (
	IntentNone         IntentMode = "nointent"
	IntentLLM          IntentMode = "intent_llm"
	IntentFunctionCall IntentMode = "function_call"
)

// ProviderBinding names the concrete provider to resolve from the DI
// container for one pipeline stage, plus any provider-specific options
// (e.g. a voice id for TTS, a model name for the LLM).
type ProviderBinding struct {
	Name    string
	Options map[string]any
}

// AgentConfig is the immutable per-session configuration negotiated at
// session start from the configuration port. Nothing in the engine mutates
// it after load; a mid-session provider swap creates a replacement binding
// in the DI container rather than editing this struct in place.
type AgentConfig struct {
	AgentID string

	VAD    ProviderBinding
	ASR    ProviderBinding
	TTS    ProviderBinding
	LLM    ProviderBinding
	Memory ProviderBinding

	SystemPrompt string
	IntentMode   IntentMode
	VoiceID      string

	StreamingText  bool
	StreamingAudio bool

	MaxRecursionDepth int
}

// WithDefaults fills zero-valued tunables with the engine's defaults,
// returning a new value so the loaded AgentConfig itself stays exactly what
// the configuration port returned.
func (a AgentConfig) WithDefaults() AgentConfig {
	if a.IntentMode == "" {
		a.IntentMode = IntentNone
	}
	if a.MaxRecursionDepth <= 0 {
		a.MaxRecursionDepth = 5
	}
	return a
}
