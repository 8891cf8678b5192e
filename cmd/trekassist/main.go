// Package main is the entry point for the trekassist CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/config"
	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/security"
	"github.com/flemzord/trekassist/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that loads the configuration.
type globalFlags struct {
	config  string
	dataDir string
	debug   bool
}

func (f *globalFlags) params() app.RunParams {
	return app.RunParams{
		ConfigPath: f.config,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    f.dataDir,
		Debug:      f.debug,
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "trekassist",
		Short:         "Context and retrieval layer of the trek marketplace assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Override data_dir")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		versionCmd(),
		startCmd(flags),
		configCmd(flags),
		askCmd(flags),
		reindexCmd(flags),
		initCmd(),
		serviceCmd(flags),
		mcpCmd(flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "trekassist %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway, background jobs and every configured module",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(flags.params())
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.config
			if len(args) == 1 {
				path = args[0]
			}
			cfg, resolved, err := app.LoadConfig(path)
			if err != nil {
				return err
			}

			params := flags.params()
			params.LogOutput = io.Discard
			rt, err := app.Build(cmd.Context(), cfg, params)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			out := cmd.OutOrStdout()
			ids := config.Resolve(cfg)
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", resolved, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "Cache backend: %s\n", rt.KV.Backend())
			fmt.Fprintf(out, "Text generator: %v\n", rt.Chain != nil)
			fmt.Fprintf(out, "Services: %s\n", strings.Join(rt.AppCtx.Services(), ", "))
			if store, ok := core.GetService[*security.CredentialStore](rt.AppCtx, security.ServiceCredentials); ok {
				if names := store.Names(); len(names) > 0 {
					fmt.Fprintf(out, "Credentials: %s\n", strings.Join(names, ", "))
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [path]",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.config
			if len(args) == 1 {
				path = args[0]
			}
			cfg, _, err := app.LoadConfig(path)
			if err != nil {
				return err
			}
			out, err := renderConfig(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

// renderConfig round-trips cfg through a generic tree so secrets expanded
// from the environment can be scrubbed before printing.
func renderConfig(cfg *config.Config) ([]byte, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return yaml.Marshal(security.NewRedactor().RedactTree(tree))
}
