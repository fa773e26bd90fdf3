// Package config loads the engine's runtime configuration from the
// environment (optionally seeded from a .env file via internal/dotenv).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MemoryBackend selects which Memory provider DialogueService resolves.
type MemoryBackend string

const (
	MemoryBackendNone   MemoryBackend = "none"
	MemoryBackendRedis  MemoryBackend = "redis"
	MemoryBackendQdrant MemoryBackend = "qdrant"
)

// Config holds every tunable the engine reads at startup. Per-agent
// overrides (voice id, system prompt, provider bindings) live in
// AgentConfig, negotiated per device through the Config port — this struct
// is process-wide.
type Config struct {
	Addr   string
	WSPath string

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	TransportPingInterval     time.Duration
	TransportWriteTimeout     time.Duration
	TransportReadTimeout      time.Duration
	TransportPriorityQueueLen int
	TransportNormalQueueLen   int

	SessionInactivityTimeout time.Duration
	SessionMonitorTick       time.Duration
	SingletonRecycleInterval time.Duration

	VADSilenceTimeout     time.Duration
	VADMaxSegmentDuration time.Duration
	VADWakeUpCooldown     time.Duration

	DefaultMaxRecursionDepth int

	HistoryBudgetModel         string
	HistoryBudgetMaxTokens     int
	HistoryBudgetReserveTokens int

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	MemoryBackend MemoryBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QdrantAddr    string
	QdrantAPIKey  string
	QdrantCollection string

	AgentID          string
	AgentSystemPrompt string
	AgentVoiceID     string
	AgentIntentMode  string
	VADProviderName  string
	ASRProviderName  string
	TTSProviderName  string
	LLMProviderName  string

	LogLevel string
}

// LoadFromEnv populates Config from the process environment, applying
// engine defaults for anything unset.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:   envOr("XIAOZHI_ADDR", ":8080"),
		WSPath: envOr("XIAOZHI_WS_PATH", "/xiaozhi/v1/"),

		ReadHeaderTimeout:   envDurationOr("XIAOZHI_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("XIAOZHI_SHUTDOWN_GRACE_PERIOD", 30*time.Second),

		TransportPingInterval:     envDurationOr("XIAOZHI_WS_PING_INTERVAL", 20*time.Second),
		TransportWriteTimeout:     envDurationOr("XIAOZHI_WS_WRITE_TIMEOUT", 5*time.Second),
		TransportReadTimeout:      envDurationOr("XIAOZHI_WS_READ_TIMEOUT", 0),
		TransportPriorityQueueLen: envIntOr("XIAOZHI_WS_PRIORITY_QUEUE_LEN", 16),
		TransportNormalQueueLen:   envIntOr("XIAOZHI_WS_NORMAL_QUEUE_LEN", 64),

		SessionInactivityTimeout: envDurationOr("XIAOZHI_SESSION_INACTIVITY_TIMEOUT", 120*time.Second),
		SessionMonitorTick:       envDurationOr("XIAOZHI_SESSION_MONITOR_TICK", 10*time.Second),
		SingletonRecycleInterval: envDurationOr("XIAOZHI_SINGLETON_RECYCLE_INTERVAL", time.Hour),

		VADSilenceTimeout:     envDurationOr("XIAOZHI_VAD_SILENCE_TIMEOUT", 700*time.Millisecond),
		VADMaxSegmentDuration: envDurationOr("XIAOZHI_VAD_MAX_SEGMENT_DURATION", 15*time.Second),
		VADWakeUpCooldown:     envDurationOr("XIAOZHI_VAD_WAKEUP_COOLDOWN", 2*time.Second),

		DefaultMaxRecursionDepth: envIntOr("XIAOZHI_MAX_RECURSION_DEPTH", 5),

		HistoryBudgetModel:         envOr("XIAOZHI_HISTORY_MODEL", "gpt-4"),
		HistoryBudgetMaxTokens:     envIntOr("XIAOZHI_HISTORY_MAX_TOKENS", 32000),
		HistoryBudgetReserveTokens: envIntOr("XIAOZHI_HISTORY_RESERVE_TOKENS", 1024),

		GeminiAPIKey:  os.Getenv("XIAOZHI_GEMINI_API_KEY"),
		GeminiModel:   envOr("XIAOZHI_GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL: envOr("XIAOZHI_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),

		MemoryBackend: MemoryBackend(envOr("XIAOZHI_MEMORY_BACKEND", string(MemoryBackendNone))),
		RedisAddr:     os.Getenv("XIAOZHI_REDIS_ADDR"),
		RedisPassword: os.Getenv("XIAOZHI_REDIS_PASSWORD"),
		RedisDB:       envIntOr("XIAOZHI_REDIS_DB", 0),
		QdrantAddr:    envOr("XIAOZHI_QDRANT_ADDR", "localhost:6334"),
		QdrantAPIKey:  os.Getenv("XIAOZHI_QDRANT_API_KEY"),
		QdrantCollection: envOr("XIAOZHI_QDRANT_COLLECTION", "xiaozhi_memory"),

		AgentID:           envOr("XIAOZHI_AGENT_ID", "default"),
		AgentSystemPrompt: envOr("XIAOZHI_AGENT_SYSTEM_PROMPT", "You are a helpful voice assistant. Keep replies short."),
		AgentVoiceID:      envOr("XIAOZHI_AGENT_VOICE_ID", "default"),
		AgentIntentMode:   envOr("XIAOZHI_AGENT_INTENT_MODE", "nointent"),
		VADProviderName:   envOr("XIAOZHI_VAD_PROVIDER", "energy"),
		ASRProviderName:   envOr("XIAOZHI_ASR_PROVIDER", "reference"),
		TTSProviderName:   envOr("XIAOZHI_TTS_PROVIDER", "reference"),
		LLMProviderName:   envOr("XIAOZHI_LLM_PROVIDER", "gemini"),

		LogLevel: envOr("XIAOZHI_LOG_LEVEL", "info"),
	}

	switch cfg.MemoryBackend {
	case MemoryBackendNone, MemoryBackendRedis, MemoryBackendQdrant:
	default:
		return Config{}, fmt.Errorf("XIAOZHI_MEMORY_BACKEND must be one of none|redis|qdrant")
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("XIAOZHI_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.WSPath) == "" {
		return Config{}, fmt.Errorf("XIAOZHI_WS_PATH must not be empty")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.TransportPingInterval <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_WS_PING_INTERVAL must be > 0")
	}
	if cfg.TransportWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.TransportReadTimeout < 0 {
		return Config{}, fmt.Errorf("XIAOZHI_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.TransportPriorityQueueLen <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_WS_PRIORITY_QUEUE_LEN must be > 0")
	}
	if cfg.TransportNormalQueueLen <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_WS_NORMAL_QUEUE_LEN must be > 0")
	}
	if cfg.SessionInactivityTimeout <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_SESSION_INACTIVITY_TIMEOUT must be > 0")
	}
	if cfg.SessionMonitorTick <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_SESSION_MONITOR_TICK must be > 0")
	}
	if cfg.SingletonRecycleInterval <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_SINGLETON_RECYCLE_INTERVAL must be > 0")
	}
	if cfg.VADSilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_VAD_SILENCE_TIMEOUT must be > 0")
	}
	if cfg.VADMaxSegmentDuration <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_VAD_MAX_SEGMENT_DURATION must be > 0")
	}
	if cfg.VADWakeUpCooldown <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_VAD_WAKEUP_COOLDOWN must be > 0")
	}
	if cfg.DefaultMaxRecursionDepth <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_MAX_RECURSION_DEPTH must be > 0")
	}
	if strings.TrimSpace(cfg.HistoryBudgetModel) == "" {
		return Config{}, fmt.Errorf("XIAOZHI_HISTORY_MODEL must not be empty")
	}
	if cfg.HistoryBudgetMaxTokens <= 0 {
		return Config{}, fmt.Errorf("XIAOZHI_HISTORY_MAX_TOKENS must be > 0")
	}
	if cfg.HistoryBudgetReserveTokens < 0 || cfg.HistoryBudgetReserveTokens >= cfg.HistoryBudgetMaxTokens {
		return Config{}, fmt.Errorf("XIAOZHI_HISTORY_RESERVE_TOKENS must be >= 0 and < XIAOZHI_HISTORY_MAX_TOKENS")
	}
	if cfg.MemoryBackend == MemoryBackendRedis && strings.TrimSpace(cfg.RedisAddr) == "" {
		return Config{}, fmt.Errorf("XIAOZHI_REDIS_ADDR must be set when XIAOZHI_MEMORY_BACKEND=redis")
	}
	if cfg.MemoryBackend == MemoryBackendQdrant && strings.TrimSpace(cfg.QdrantAddr) == "" {
		return Config{}, fmt.Errorf("XIAOZHI_QDRANT_ADDR must be set when XIAOZHI_MEMORY_BACKEND=qdrant")
	}
	switch cfg.AgentIntentMode {
	case "nointent", "intent_llm", "function_call":
	default:
		return Config{}, fmt.Errorf("XIAOZHI_AGENT_INTENT_MODE must be one of nointent|intent_llm|function_call")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
