package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Milvus     MilvusConfig
	Providers  ProvidersConfig
	Classifier ClassifierConfig
	Retrieval  RetrievalConfig
	Evaluation EvaluationConfig
	Diagnosis  DiagnosisConfig
	Ingestion  IngestionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type ProvidersConfig struct {
	Default   string
	Anthropic ProviderConfig
	OpenAI    ProviderConfig
	Embedding EmbeddingConfig
}

type ProviderConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type EmbeddingConfig struct {
	APIKey string
	Model  string
	Dim    int
}

type ClassifierConfig struct {
	Provider  string
	Model     string
	MaxTokens int
}

type RetrievalConfig struct {
	TopK int
}

type EvaluationConfig struct {
	SampleRate    float64
	Workers       int
	QueueSize     int
	JudgeProvider string
	JudgeModel    string
}

type DiagnosisConfig struct {
	WindowDays     int
	MinEvaluations int
	Model          string
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/raglens")

	viper.SetEnvPrefix("RAGLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/raglens.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "support_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("providers.default", "anthropic")
	viper.SetDefault("providers.anthropic.model", "claude-3-5-sonnet-20241022")
	viper.SetDefault("providers.anthropic.temperature", 0.7)
	viper.SetDefault("providers.anthropic.maxTokens", 1024)
	viper.SetDefault("providers.anthropic.timeoutSec", 60)
	viper.SetDefault("providers.openai.model", "gpt-4-turbo-preview")
	viper.SetDefault("providers.openai.temperature", 0.7)
	viper.SetDefault("providers.openai.maxTokens", 1024)
	viper.SetDefault("providers.openai.timeoutSec", 60)
	viper.SetDefault("providers.embedding.model", "text-embedding-3-small")
	viper.SetDefault("providers.embedding.dim", 1536)

	viper.SetDefault("classifier.provider", "anthropic")
	viper.SetDefault("classifier.model", "claude-3-haiku-20240307")
	viper.SetDefault("classifier.maxTokens", 200)

	viper.SetDefault("retrieval.topK", 5)

	viper.SetDefault("evaluation.sampleRate", 0.1)
	viper.SetDefault("evaluation.workers", 2)
	viper.SetDefault("evaluation.queueSize", 64)
	viper.SetDefault("evaluation.judgeProvider", "anthropic")
	viper.SetDefault("evaluation.judgeModel", "claude-3-5-sonnet-20241022")

	viper.SetDefault("diagnosis.windowDays", 7)
	viper.SetDefault("diagnosis.minEvaluations", 10)
	viper.SetDefault("diagnosis.model", "claude-3-haiku-20240307")

	viper.SetDefault("ingestion.chunkSize", 500)
	viper.SetDefault("ingestion.chunkOverlap", 50)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
