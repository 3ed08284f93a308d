package config

// Config is the root configuration structure for ossgard.
// Serialised to ~/.ossgard/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	GitHub   GitHubConfig   `mapstructure:"github"   json:"github"`
	AI       AIConfig       `mapstructure:"ai"       json:"ai"`
	Vector   VectorConfig   `mapstructure:"vector"   json:"vector"`
	Scan     ScanConfig     `mapstructure:"scan"     json:"scan"`
	Gateway  GatewayConfig  `mapstructure:"gateway"  json:"gateway"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// GitHubConfig holds the credential for the source-hosting API.
type GitHubConfig struct {
	Token string `mapstructure:"token" json:"token"`
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host"  json:"host"`
	// MaxConcurrent bounds in-flight API calls through the rate-limit gate.
	MaxConcurrent int `mapstructure:"max_concurrent" json:"max_concurrent"`
}

// AIConfig controls the chat and embedding providers.
type AIConfig struct {
	// Provider is "openai" (default), "anthropic", or "ollama".
	Provider     string `mapstructure:"provider"          json:"provider"`
	OpenAIKey    string `mapstructure:"openai_api_key"    json:"openai_api_key"`
	AnthropicKey string `mapstructure:"anthropic_api_key" json:"anthropic_api_key"`
	Model        string `mapstructure:"model"             json:"model"`
	// BaseURL overrides the API endpoint (useful for proxies).
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// OllamaURL is used when Provider == "ollama".
	OllamaURL string `mapstructure:"ollama_url" json:"ollama_url"`
	// EmbedProvider is "openai" (default) or "ollama"; empty inherits Provider
	// when that provider can embed, otherwise falls back to "openai".
	EmbedProvider string `mapstructure:"embed_provider" json:"embed_provider"`
	// EmbedModel is the embedding model name.
	EmbedModel string `mapstructure:"embed_model" json:"embed_model"`
	// EmbedContextTokens is the embedding model's context window.
	EmbedContextTokens int `mapstructure:"embed_context_tokens" json:"embed_context_tokens"`
	// IntentSummaries enables one LLM call per PR to produce the intent
	// text instead of the deterministic template.
	IntentSummaries bool `mapstructure:"intent_summaries" json:"intent_summaries"`
	// Fallback lists chat providers tried in order when the primary fails.
	Fallback []string `mapstructure:"fallback" json:"fallback"`
}

// VectorConfig controls the similarity index backend.
type VectorConfig struct {
	// Provider is "qdrant" (default) or "memory" (in-process, for tests
	// and single-shot scans).
	Provider string `mapstructure:"provider" json:"provider"`
	URL      string `mapstructure:"url"      json:"url"`
	APIKey   string `mapstructure:"api_key"  json:"api_key"`
}

// ScanConfig is the resolved per-scan pipeline configuration. Profiles
// (internal/profiles) override these per scan.
type ScanConfig struct {
	// CodeSimilarityThreshold gates code-vector neighbours during cluster.
	CodeSimilarityThreshold float64 `mapstructure:"code_similarity_threshold" json:"code_similarity_threshold"`
	// IntentSimilarityThreshold gates intent-vector neighbours.
	IntentSimilarityThreshold float64 `mapstructure:"intent_similarity_threshold" json:"intent_similarity_threshold"`
	// Concurrency bounds parallel work inside a phase (pairwise verify calls).
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// EmbedBatchSize is the number of texts per embedding request.
	EmbedBatchSize int `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	// TokenBudgetFactor scales the embedding context window when truncating.
	TokenBudgetFactor float64 `mapstructure:"token_budget_factor" json:"token_budget_factor"`
	// Workers is the number of queue worker goroutines.
	Workers int `mapstructure:"workers" json:"workers"`
	// MaxRetries is the per-job retry ceiling.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`
}

// GatewayConfig controls the control-surface HTTP server.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6380).
	Port int `mapstructure:"port" json:"port"`
}

// NotifyConfig controls scan-completion notifications.
type NotifyConfig struct {
	WebhookURL      string `mapstructure:"webhook_url"       json:"webhook_url"`
	SlackWebhookURL string `mapstructure:"slack_webhook_url" json:"slack_webhook_url"`
}
