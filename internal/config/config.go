package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"` // pretty, json, text
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	StdoutTraces bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	EventStore   EventStoreConfig   `yaml:"event_store"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Capture      CaptureConfig      `yaml:"capture"`
	Conversation ConversationConfig `yaml:"conversation"`
	STT          STTConfig          `yaml:"stt"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	Player       PlayerConfig       `yaml:"player"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxCycles     int    `yaml:"max_cycles"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// OpenAIConfig is shared by every backend running in openai mode.
type OpenAIConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Proxy            string `yaml:"proxy"` // host:port of a SOCKS5 proxy
	RequestTimeoutMS int    `yaml:"request_timeout_ms"` // wait for response headers
	MaxRetries       int    `yaml:"max_retries"`
}

type CaptureConfig struct {
	Command          string  `yaml:"command"`
	DeviceStrategy   string  `yaml:"device_strategy"` // auto, fixed
	InputFormat      string  `yaml:"input_format"`
	Input            string  `yaml:"input"`
	OutputPath       string  `yaml:"output_path"`
	NoiseThresholdDB float64 `yaml:"noise_threshold_db"`
	MinSilenceMS     int     `yaml:"min_silence_ms"`
	SilenceDelayMS   int     `yaml:"silence_delay_ms"`
	MaxDurationMS    int     `yaml:"max_duration_ms"`
	MinClipMS        int     `yaml:"min_clip_ms"`
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
}

type ConversationConfig struct {
	Path         string `yaml:"path"`
	SystemPrompt string `yaml:"system_prompt"`
}

type STTConfig struct {
	Mode        string  `yaml:"mode"` // openai, exec, mock
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	Language    string  `yaml:"language"`
	Prompt      string  `yaml:"prompt"`
	Temperature float64 `yaml:"temperature"`
}

type LLMConfig struct {
	Mode         string  `yaml:"mode"` // openai, ollama, exec, mock
	Endpoint     string  `yaml:"endpoint"`
	Command      string  `yaml:"command"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	HistoryLimit int     `yaml:"history_limit"`
}

type TTSConfig struct {
	Mode         string  `yaml:"mode"` // openai, exec, mock
	Command      string  `yaml:"command"`
	Model        string  `yaml:"model"`
	Voice        string  `yaml:"voice"`
	Speed        float64 `yaml:"speed"`
	Format       string  `yaml:"format"`
	Instructions string  `yaml:"instructions"`
}

type PlayerConfig struct {
	Mode    string `yaml:"mode"` // ffplay, speaker, none
	Command string `yaml:"command"`
}

// CannedReply answers a transcript without a completion call.
type CannedReply struct {
	Phrases []string `yaml:"phrases"`
	Answer  string   `yaml:"answer"`
}

type PipelineConfig struct {
	Loop        bool          `yaml:"loop"`
	OnError     string        `yaml:"on_error"` // exit, restart
	ErrorReply  string        `yaml:"error_reply"`
	Replies     []CannedReply `yaml:"replies"`
	MatchRatio  int           `yaml:"match_ratio"`
	ExitPhrases []string      `yaml:"exit_phrases"`
	Farewell    string        `yaml:"farewell"`
	CallTimeout int           `yaml:"call_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "jarvis",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "pretty",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/jarvis-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxCycles:     10000,
		},
		OpenAI: OpenAIConfig{
			RequestTimeoutMS: 120000,
			MaxRetries:       0,
		},
		Capture: CaptureConfig{
			Command:          "ffmpeg",
			DeviceStrategy:   "auto",
			OutputPath:       "recording.mp3",
			NoiseThresholdDB: -45,
			MinSilenceMS:     1000,
			SilenceDelayMS:   1000,
			SampleRate:       44100,
			Channels:         1,
		},
		Conversation: ConversationConfig{
			Path:         "conversation.json",
			SystemPrompt: "You are Jarvis, a helpful voice assistant. Keep answers short.",
		},
		STT: STTConfig{
			Mode:     "openai",
			Model:    "whisper-1",
			Language: "en",
		},
		LLM: LLMConfig{
			Mode:        "openai",
			Endpoint:    "http://localhost:11434",
			Model:       "gpt-4o-mini",
			MaxTokens:   256,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Mode:   "openai",
			Model:  "tts-1",
			Voice:  "alloy",
			Speed:  1.0,
			Format: "mp3",
		},
		Player: PlayerConfig{
			Mode:    "ffplay",
			Command: "ffplay",
		},
		Pipeline: PipelineConfig{
			Loop:        false,
			OnError:     "exit",
			MatchRatio:  85,
			CallTimeout: 120000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Read applies the file and environment on top of the defaults without
// validating, for tools that only need part of the configuration.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// UsesOpenAI reports whether any backend talks to the OpenAI API.
func (c Config) UsesOpenAI() bool {
	return c.STT.Mode == "openai" || c.LLM.Mode == "openai" || c.TTS.Mode == "openai"
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "JARVIS_RUNTIME_NAME")
	overrideString(&cfg.Environment, "JARVIS_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "JARVIS_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "JARVIS_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "JARVIS_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "JARVIS_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "JARVIS_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "JARVIS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "JARVIS_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "JARVIS_TELEMETRY_STDOUT_TRACES")
	overrideBool(&cfg.Bus.Enabled, "JARVIS_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "JARVIS_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "JARVIS_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "JARVIS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "JARVIS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "JARVIS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "JARVIS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "JARVIS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "JARVIS_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "JARVIS_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "JARVIS_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "JARVIS_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxCycles, "JARVIS_EVENT_STORE_MAX_CYCLES")
	overrideBool(&cfg.EventStore.VacuumOnStart, "JARVIS_EVENT_STORE_VACUUM_ON_START")
	// The original scripts read API_TOKEN; OPENAI_API_KEY wins when both are set.
	overrideString(&cfg.OpenAI.APIKey, "API_TOKEN")
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.APIKey, "JARVIS_OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.BaseURL, "JARVIS_OPENAI_BASE_URL")
	overrideString(&cfg.OpenAI.Proxy, "JARVIS_OPENAI_PROXY")
	overrideInt(&cfg.OpenAI.RequestTimeoutMS, "JARVIS_OPENAI_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.OpenAI.MaxRetries, "JARVIS_OPENAI_MAX_RETRIES")
	overrideString(&cfg.Capture.Command, "JARVIS_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.DeviceStrategy, "JARVIS_CAPTURE_DEVICE_STRATEGY")
	overrideString(&cfg.Capture.InputFormat, "JARVIS_CAPTURE_INPUT_FORMAT")
	overrideString(&cfg.Capture.Input, "JARVIS_CAPTURE_INPUT")
	overrideString(&cfg.Capture.OutputPath, "JARVIS_CAPTURE_OUTPUT_PATH")
	overrideFloat(&cfg.Capture.NoiseThresholdDB, "JARVIS_CAPTURE_NOISE_THRESHOLD_DB")
	overrideInt(&cfg.Capture.MinSilenceMS, "JARVIS_CAPTURE_MIN_SILENCE_MS")
	overrideInt(&cfg.Capture.SilenceDelayMS, "JARVIS_CAPTURE_SILENCE_DELAY_MS")
	overrideInt(&cfg.Capture.MaxDurationMS, "JARVIS_CAPTURE_MAX_DURATION_MS")
	overrideInt(&cfg.Capture.MinClipMS, "JARVIS_CAPTURE_MIN_CLIP_MS")
	overrideString(&cfg.Conversation.Path, "JARVIS_CONVERSATION_PATH")
	overrideString(&cfg.Conversation.SystemPrompt, "JARVIS_CONVERSATION_SYSTEM_PROMPT")
	overrideString(&cfg.STT.Mode, "JARVIS_STT_MODE")
	overrideString(&cfg.STT.Command, "JARVIS_STT_COMMAND")
	overrideString(&cfg.STT.Model, "JARVIS_STT_MODEL")
	overrideString(&cfg.STT.Language, "JARVIS_STT_LANGUAGE")
	overrideString(&cfg.STT.Prompt, "JARVIS_STT_PROMPT")
	overrideString(&cfg.LLM.Mode, "JARVIS_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "JARVIS_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "JARVIS_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "JARVIS_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "JARVIS_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "JARVIS_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.HistoryLimit, "JARVIS_LLM_HISTORY_LIMIT")
	overrideString(&cfg.TTS.Mode, "JARVIS_TTS_MODE")
	overrideString(&cfg.TTS.Command, "JARVIS_TTS_COMMAND")
	overrideString(&cfg.TTS.Model, "JARVIS_TTS_MODEL")
	overrideString(&cfg.TTS.Voice, "JARVIS_TTS_VOICE")
	overrideFloat(&cfg.TTS.Speed, "JARVIS_TTS_SPEED")
	overrideString(&cfg.Player.Mode, "JARVIS_PLAYER_MODE")
	overrideString(&cfg.Player.Command, "JARVIS_PLAYER_COMMAND")
	overrideBool(&cfg.Pipeline.Loop, "JARVIS_PIPELINE_LOOP")
	overrideString(&cfg.Pipeline.OnError, "JARVIS_PIPELINE_ON_ERROR")
	overrideString(&cfg.Pipeline.ErrorReply, "JARVIS_PIPELINE_ERROR_REPLY")
	overrideStringSlice(&cfg.Pipeline.ExitPhrases, "JARVIS_PIPELINE_EXIT_PHRASES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "pretty", "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of pretty|json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 || cfg.EventStore.MaxCycles < 0 {
		return errors.New("event_store.retention_days and event_store.max_cycles must be >= 0")
	}
	if cfg.UsesOpenAI() && strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return errors.New("openai.api_key (or OPENAI_API_KEY) must be set when a backend uses mode=openai")
	}
	if cfg.OpenAI.MaxRetries < 0 {
		return errors.New("openai.max_retries must be >= 0")
	}
	if strings.TrimSpace(cfg.Capture.Command) == "" {
		return errors.New("capture.command must not be empty")
	}
	switch cfg.Capture.DeviceStrategy {
	case "auto":
	case "fixed":
		if cfg.Capture.InputFormat == "" || cfg.Capture.Input == "" {
			return errors.New("capture.input_format and capture.input must be set when device_strategy=fixed")
		}
	default:
		return errors.New("capture.device_strategy must be one of auto|fixed")
	}
	if cfg.Capture.OutputPath == "" {
		return errors.New("capture.output_path must not be empty")
	}
	if cfg.Capture.SilenceDelayMS <= 0 {
		return errors.New("capture.silence_delay_ms must be positive")
	}
	if cfg.Capture.MinSilenceMS <= 0 {
		return errors.New("capture.min_silence_ms must be positive")
	}
	if cfg.Capture.MaxDurationMS < 0 || cfg.Capture.MinClipMS < 0 {
		return errors.New("capture.max_duration_ms and capture.min_clip_ms must be >= 0")
	}
	if cfg.Capture.SampleRate <= 0 || cfg.Capture.Channels <= 0 {
		return errors.New("capture.sample_rate and capture.channels must be positive")
	}
	if cfg.Conversation.Path == "" {
		return errors.New("conversation.path must not be empty")
	}
	switch cfg.STT.Mode {
	case "openai", "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of openai|exec|mock")
	}
	switch cfg.LLM.Mode {
	case "openai", "mock":
	case "ollama":
		if cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
	case "exec":
		if cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
	default:
		return errors.New("llm.mode must be one of openai|ollama|exec|mock")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.HistoryLimit < 0 {
		return errors.New("llm.history_limit must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "openai", "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of openai|exec|mock")
	}
	switch cfg.Player.Mode {
	case "speaker", "none":
	case "ffplay":
		if strings.TrimSpace(cfg.Player.Command) == "" {
			return errors.New("player.command must be set when mode=ffplay")
		}
	default:
		return errors.New("player.mode must be one of ffplay|speaker|none")
	}
	switch cfg.Pipeline.OnError {
	case "exit", "restart":
	default:
		return errors.New("pipeline.on_error must be one of exit|restart")
	}
	if cfg.Pipeline.MatchRatio < 0 || cfg.Pipeline.MatchRatio > 100 {
		return errors.New("pipeline.match_ratio must be between 0 and 100")
	}
	for i, reply := range cfg.Pipeline.Replies {
		if len(reply.Phrases) == 0 || reply.Answer == "" {
			return fmt.Errorf("pipeline.replies[%d] needs phrases and an answer", i)
		}
	}
	return nil
}
