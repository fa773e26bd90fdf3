package engine

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relaytone/xiaozhi-engine/pkg/core/di"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/config"
	asrreference "github.com/relaytone/xiaozhi-engine/pkg/providers/asr/reference"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/intent/llmintent"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/llm/gemini"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/memory"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/memory/qdrant"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/memory/redis"
	ttsreference "github.com/relaytone/xiaozhi-engine/pkg/providers/tts/reference"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/vad/energy"
)

// deviceIntents is the fixed classification catalogue for intent_llm mode:
// the small set of structured commands a voice-interactive device supports
// outside of free-form dialogue. A deployment with a different tool set
// builds its own catalogue and passes it to llmintent.New directly.
var deviceIntents = []llmintent.Intent{
	{
		Name:        "set_volume",
		Description: "Set the device's playback volume.",
		Parameters: map[string]any{
			"level": map[string]any{"type": "integer", "description": "Volume from 0 to 100"},
		},
	},
	{
		Name:        "stop_playback",
		Description: "Stop whatever the device is currently playing or speaking.",
	},
	{
		Name:        "device_status",
		Description: "Report the device's current status (battery, network, wake word).",
	},
}

// BuildIntentProvider constructs the process-wide ports.Intent used by
// IntentService when AgentConfig.IntentMode == intent_llm. It returns nil
// for nointent/function_call deployments, since intent_llm is the only mode
// that calls out to a distinct classification LLM.
func BuildIntentProvider(cfg config.Config) ports.Intent {
	if cfg.AgentIntentMode != "intent_llm" {
		return nil
	}
	llm := gemini.New(cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel), gemini.WithBaseURL(cfg.GeminiBaseURL))
	return llmintent.New(llm, deviceIntents)
}

// RegisterDefaultProviders wires every DOMAIN STACK provider under its
// namespaced DI key so any AgentConfig binding can resolve one by name.
// This is the closure New's registerProviders parameter expects; a
// deployment that needs a different set of providers writes its own.
func RegisterDefaultProviders(cfg config.Config) (func(*di.Container), error) {
	var redisClient *goredis.Client
	if cfg.MemoryBackend == config.MemoryBackendRedis {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	var qdrantStore *qdrant.Store
	if cfg.MemoryBackend == config.MemoryBackendQdrant {
		store, err := qdrant.New(qdrant.Config{
			URL:            cfg.QdrantAddr,
			CollectionName: cfg.QdrantCollection,
			APIKey:         cfg.QdrantAPIKey,
		}, qdrant.NewHashEmbedder(0))
		if err != nil {
			return nil, fmt.Errorf("engine: building qdrant store: %w", err)
		}
		qdrantStore = store
	}

	return func(c *di.Container) {
		c.RegisterSession(VADBindingKey("energy"), func(sessionID string) (any, error) {
			return energy.New(energy.Config{}), nil
		})

		c.RegisterSingleton(ASRBindingKey("reference"), func() (any, error) {
			return asrreference.New(), nil
		})

		c.RegisterSingleton(TTSBindingKey("reference"), func() (any, error) {
			return ttsreference.New(), nil
		})

		c.RegisterSingleton(LLMBindingKey("gemini"), func() (any, error) {
			return gemini.New(cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel), gemini.WithBaseURL(cfg.GeminiBaseURL)), nil
		})

		c.RegisterSingleton(MemoryBindingKey("redis"), func() (any, error) {
			var recent *redis.Store
			if redisClient != nil {
				recent = redis.New(redisClient, 0)
			}
			return memory.New(recent, nil), nil
		})

		c.RegisterSingleton(MemoryBindingKey("qdrant"), func() (any, error) {
			return memory.New(nil, qdrantStore), nil
		})
	}, nil
}
