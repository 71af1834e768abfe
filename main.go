// sfstory generates science fiction story outlines from a topic with a
// panel of LLM personas and a review gate.
//
// Usage:
//
//	sfstory generate --topic "Smartphone"
//	sfstory batch --theme "Grocery Store" --theme Soccer --stories 5
//	sfstory serve --addr :8080
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sfstory/apmodel"
	"sfstory/config"
	"sfstory/generator"
	"sfstory/logging"
	"sfstory/pipeline"
)

var version = "dev"

var rootFlags struct {
	configPath string
	verbose    bool
	logFormat  string
	provider   string
	html       bool
}

var rootCmd = &cobra.Command{
	Use:   "sfstory",
	Short: "Generate science fiction story outlines with a panel of LLM personas",
	Long: `sfstory hires a panel of expert personas for a topic, lets them brainstorm
a future society element by element, then drafts the story settings and a
five-step plot outline behind an overseer review.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "config/config.json", "Path to config.json")
	f.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable debug logs")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&rootFlags.provider, "provider", "", "Override llm.provider (openai, deepseek, mock)")
	f.BoolVar(&rootFlags.html, "html", false, "Also write an HTML report per run")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

func setup(cmd *cobra.Command) (*app, error) {
	logging.Init(logging.Level(rootFlags.verbose), rootFlags.logFormat, cmd.ErrOrStderr())
	logger := logging.New("cli")

	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.provider != "" {
		cfg.LLM.Provider = rootFlags.provider
	}
	cfg.ResolveAPIKey()

	llm, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	model, err := apmodel.Load(cfg.APModelPath)
	if err != nil {
		return nil, err
	}
	agent, err := generator.NewAgent(llm, model.SystemPrompt(), cfg.Timeout())
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(agent, model, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	logger.Debug("configured",
		"provider", cfg.LLM.Provider, "model", cfg.LLM.Model,
		"agents", cfg.NumAgents, "iterations", cfg.NumIterations, "retries", cfg.MaxRetries,
		"elements", len(model.Elements()))
	return &app{cfg: cfg, pipeline: p, logger: logger}, nil
}

func buildLLM(cfg config.Config) (generator.LLMClient, error) {
	if cfg.LLM == nil || cfg.LLM.Provider == "" {
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key_env in config")
	}
	settings := &generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	}
	var client generator.LLMClient
	switch cfg.LLM.Provider {
	case "mock":
		client = generator.MockLLM{}
	case "openai":
		c, err := generator.NewOpenAILLMFromConfig(settings)
		if err != nil {
			return nil, err
		}
		client = c
	case "deepseek":
		// DeepSeek speaks the OpenAI protocol but has no default endpoint here.
		if cfg.LLM.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		c, err := generator.NewOpenAILLMFromConfig(settings)
		if err != nil {
			return nil, err
		}
		client = c
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
	return generator.NewRateLimited(client, cfg.RequestsPerSecond, cfg.NumAgents), nil
}
