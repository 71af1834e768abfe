package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIKeyEnv is consulted when llm.api_key is empty.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

// Config holds everything a run needs. It is built once at startup and
// passed by value into the components that need it.
type Config struct {
	LLM                  *LLMConfig `json:"llm,omitempty"`
	NumAgents            int        `json:"num_agents"`
	NumIterations        int        `json:"num_iterations"`
	MaxRetries           int        `json:"max_retries"`
	MaxConcurrentStories int        `json:"max_concurrent_stories"`
	RequestTimeout       Duration   `json:"request_timeout"`
	RequestsPerSecond    float64    `json:"requests_per_second,omitempty"`
	StrictReview         bool       `json:"strict_review,omitempty"`
	APModelPath          string     `json:"ap_model,omitempty"`
	OutputDir            string     `json:"output_dir,omitempty"`
	ServerAddr           string     `json:"server_addr,omitempty"`
}

// LLMConfig selects and authenticates the content provider.
type LLMConfig struct {
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
}

// Duration decodes either a Go duration string ("90s") or a number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: request_timeout: %w", err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("config: request_timeout must be a duration string or seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Default mirrors the values the generator was tuned with.
func Default() Config {
	return Config{
		LLM: &LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		NumAgents:            3,
		NumIterations:        3,
		MaxRetries:           3,
		MaxConcurrentStories: 5,
		RequestTimeout:       Duration(90 * time.Second),
		OutputDir:            "batch_stories",
		ServerAddr:           ":8080",
	}
}

// LoadConfig reads JSON config from disk on top of Default. A missing file
// yields the defaults; unreadable or invalid files are errors.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if cfg.LLM == nil {
		cfg.LLM = Default().LLM
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings that would break the pipeline invariants.
func (c Config) Validate() error {
	if c.NumAgents < 1 {
		return errors.New("config: num_agents must be at least 1")
	}
	if c.NumIterations < 1 {
		return errors.New("config: num_iterations must be at least 1")
	}
	if c.MaxRetries < 1 {
		return errors.New("config: max_retries must be at least 1")
	}
	if c.MaxConcurrentStories < 1 {
		return errors.New("config: max_concurrent_stories must be at least 1")
	}
	if c.RequestTimeout < 0 {
		return errors.New("config: request_timeout must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("config: requests_per_second must not be negative")
	}
	return nil
}

// Timeout returns the per-request timeout as a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout)
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// ResolveAPIKey fills LLM.APIKey from the environment when the config file
// left it empty.
func (c *Config) ResolveAPIKey() {
	if c.LLM == nil || c.LLM.APIKey != "" {
		return
	}
	env := c.LLM.APIKeyEnv
	if env == "" {
		env = DefaultAPIKeyEnv
	}
	c.LLM.APIKey = os.Getenv(env)
}
