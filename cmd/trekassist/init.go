package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/config"
)

// initAnswers holds what the init wizard asks for.
type initAnswers struct {
	Generator    string // anthropic, openai or none
	SourceURL    string
	RedisURL     string
	Embeddings   bool
	AdminToken   string
	GatewayBind  string
	Conversation string // kvs or sqlite
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Generator:    "anthropic",
		SourceURL:    "http://localhost:4000",
		GatewayBind:  "127.0.0.1:8080",
		Conversation: "kvs",
	}
}

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = config.FileName
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := defaultAnswers()
			if !yes {
				if err := initForm(&answers).Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
			}

			data, err := renderInitConfig(answers)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return err
				}
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the file (default ./"+config.FileName+")")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Text generator").
				Description("Without one, answers are built from the retrieved documents.").
				Options(
					huh.NewOption("Anthropic", "anthropic"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("None (retrieval only)", "none"),
				).
				Value(&a.Generator),
			huh.NewConfirm().
				Title("Use OpenAI embeddings?").
				Description("Reads OPENAI_API_KEY. Otherwise vectors are computed locally.").
				Value(&a.Embeddings),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Booking API base URL").
				Value(&a.SourceURL).
				Validate(validateURL(true)),
			huh.NewInput().
				Title("Redis URL").
				Description("Leave empty to keep the cache in memory.").
				Placeholder("redis://localhost:6379/0").
				Value(&a.RedisURL).
				Validate(validateURL(false)),
			huh.NewSelect[string]().
				Title("Conversation storage").
				Options(
					huh.NewOption("Same as the cache", "kvs"),
					huh.NewOption("SQLite file", "sqlite"),
				).
				Value(&a.Conversation),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&a.GatewayBind),
			huh.NewInput().
				Title("Admin bearer token").
				Description("Protects cache and knowledge admin endpoints. Leave empty to use ${TREKASSIST_ADMIN_TOKEN}.").
				EchoMode(huh.EchoModePassword).
				Value(&a.AdminToken),
		),
	)
}

func validateURL(required bool) func(string) error {
	return func(s string) error {
		if s == "" {
			if required {
				return errors.New("required")
			}
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("must be an absolute URL")
		}
		return nil
	}
}

// renderInitConfig produces a configuration file from the wizard answers.
// Secrets are referenced through environment variables unless typed in.
func renderInitConfig(a initAnswers) ([]byte, error) {
	doc := map[string]any{
		"version": "1",
		"log":     map[string]any{"level": "info", "format": "text"},
		"knowledge": map[string]any{
			"source": map[string]any{"base_url": a.SourceURL},
		},
		"cron": map[string]any{"cache_maintenance": "*/15 * * * *"},
	}
	if a.RedisURL != "" {
		doc["kvs"] = map[string]any{"url": a.RedisURL}
	}

	token := a.AdminToken
	if token == "" {
		token = "${TREKASSIST_ADMIN_TOKEN:-}"
	}
	modules := map[string]any{
		"gateway.http": map[string]any{
			"bind": a.GatewayBind,
			"auth": map[string]any{"bearer_token": token},
		},
	}
	switch a.Generator {
	case "anthropic":
		modules["provider.anthropic"] = map[string]any{"api_key_env": "ANTHROPIC_API_KEY"}
	case "openai":
		modules["provider.openai"] = map[string]any{"api_key_env": "OPENAI_API_KEY"}
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown generator %q", a.Generator)
	}
	if a.Embeddings {
		modules["embedding.openai"] = map[string]any{"api_key_env": "OPENAI_API_KEY"}
	}
	if a.Conversation == "sqlite" {
		modules["conversation.sqlite"] = map[string]any{"path": "conversations.db"}
	}
	doc["modules"] = modules

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return append([]byte("# Generated by trekassist init\n"), data...), nil
}
