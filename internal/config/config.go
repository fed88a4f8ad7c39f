package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/speech"
)

// 能力提供方名称。
const (
	ProviderMock       = "mock"
	ProviderOpenAI     = "openai"
	ProviderArk        = "ark"
	ProviderVolcengine = "volcengine"
)

// 存储后端名称。
const (
	StorageMemory = "memory"
	StorageS3     = "s3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Providers ProvidersConfig
	OpenAI    OpenAIConfig
	AI        AIConfig
	Speech    speech.VolcengineConfig
	Limits    LimitsConfig
	Auth      AuthConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProvidersConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speechCfg, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	limits, err := loadLimitsConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       LogConfig{Format: getEnvOrDefault("LOG_FORMAT", "text"), Level: getEnvOrDefault("LOG_LEVEL", "info")},
		Database:  DatabaseConfig{URL: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
		Storage:   storage,
		Providers: providers,
		OpenAI:    loadOpenAIConfig(),
		AI:        ai,
		Speech:    speechCfg,
		Limits:    limits,
		Auth:      auth,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 日志输出格式与级别。
type LogConfig struct {
	Format string
	Level  string
}

// DatabaseConfig 为空时使用内存存储。
type DatabaseConfig struct {
	URL string
}

// StorageConfig 对象存储配置。
type StorageConfig struct {
	Backend         string
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func loadStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{
		Backend:         strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageMemory)),
		Region:          getEnvOrDefault("AWS_REGION", "us-east-1"),
		Bucket:          getEnvOrDefault("AWS_S3_BUCKET", "inner-self-media"),
		Endpoint:        strings.TrimSpace(os.Getenv("AWS_S3_ENDPOINT")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
	}

	switch cfg.Backend {
	case StorageMemory, StorageS3:
		return cfg, nil
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_BACKEND value %q", cfg.Backend)
	}
}

// ProvidersConfig 每种能力选用的后端，默认 mock。
type ProvidersConfig struct {
	STT            string
	LLM            string
	TTS            string
	MockTranscript string
}

func loadProvidersConfig() (ProvidersConfig, error) {
	cfg := ProvidersConfig{
		STT:            strings.ToLower(getEnvOrDefault("STT_PROVIDER", ProviderMock)),
		LLM:            strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderMock)),
		TTS:            strings.ToLower(getEnvOrDefault("TTS_PROVIDER", ProviderMock)),
		MockTranscript: strings.TrimSpace(os.Getenv("MOCK_TRANSCRIPT")),
	}

	if err := checkProvider("STT_PROVIDER", cfg.STT, ProviderMock, ProviderOpenAI, ProviderVolcengine); err != nil {
		return ProvidersConfig{}, err
	}
	if err := checkProvider("LLM_PROVIDER", cfg.LLM, ProviderMock, ProviderOpenAI, ProviderArk); err != nil {
		return ProvidersConfig{}, err
	}
	if err := checkProvider("TTS_PROVIDER", cfg.TTS, ProviderMock, ProviderVolcengine); err != nil {
		return ProvidersConfig{}, err
	}
	return cfg, nil
}

func checkProvider(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s value %q: expected one of %s", key, value, strings.Join(allowed, ", "))
}

// OpenAIConfig OpenAI 兼容接口配置，用于生成与转写。
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
}

// Enabled 表示是否提供了 API Key。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:         getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:           getEnvOrDefault("OPENAI_MODEL", "gpt-4-turbo-preview"),
		TranscribeModel: getEnvOrDefault("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
	}
}

// AIConfig 描述火山方舟大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		def := 0.7
		temperature = &def
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		def := 300
		maxTokens = &def
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func loadSpeechConfig() (speech.VolcengineConfig, error) {
	timeout, err := parseOptionalIntEnv("VOLC_TIMEOUT")
	if err != nil {
		return speech.VolcengineConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("VOLC_TTS_SPEED")
	if err != nil {
		return speech.VolcengineConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	concurrent, err := parseBoolEnv("VOLC_ASR_CONCURRENT", false)
	if err != nil {
		return speech.VolcengineConfig{}, err
	}

	return speech.VolcengineConfig{
		AppID:          strings.TrimSpace(os.Getenv("VOLC_APP_ID")),
		AccessToken:    strings.TrimSpace(os.Getenv("VOLC_ACCESS_TOKEN")),
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("VOLC_ASR_LANGUAGE", "en-US"),
		TTSVoice:       getEnvOrDefault("VOLC_TTS_VOICE", ""),
		TTSSpeed:       ttsSpeed,
		TTSLanguage:    getEnvOrDefault("VOLC_TTS_LANGUAGE", "en"),
		Timeout:        timeoutSeconds,
	}, nil
}

// LimitsConfig 会话与上传的限制。
type LimitsConfig struct {
	MaxSessionTurns int
	MaxAudioBytes   int64
	SignedURLExpiry time.Duration
}

func loadLimitsConfig() (LimitsConfig, error) {
	turns, err := parsePositiveIntEnv("MAX_SESSION_TURNS", 100)
	if err != nil {
		return LimitsConfig{}, err
	}

	audioMB, err := parsePositiveIntEnv("MAX_AUDIO_SIZE_MB", 10)
	if err != nil {
		return LimitsConfig{}, err
	}

	expiry, err := parsePositiveIntEnv("SIGNED_URL_EXPIRY_SECONDS", 3600)
	if err != nil {
		return LimitsConfig{}, err
	}

	return LimitsConfig{
		MaxSessionTurns: turns,
		MaxAudioBytes:   int64(audioMB) * 1024 * 1024,
		SignedURLExpiry: time.Duration(expiry) * time.Second,
	}, nil
}

// AuthConfig 请求鉴权配置。Disabled 只用于本地开发。
type AuthConfig struct {
	JWTSecret string
	Disabled  bool
}

func loadAuthConfig() (AuthConfig, error) {
	disabled, err := parseBoolEnv("AUTH_DISABLED", false)
	if err != nil {
		return AuthConfig{}, err
	}

	secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))
	if secret == "" && !disabled {
		return AuthConfig{}, fmt.Errorf("AUTH_JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	return AuthConfig{JWTSecret: secret, Disabled: disabled}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, strconv.Itoa(*val))
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
