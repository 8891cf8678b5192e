package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/pkg/app"
)

// withRuntime builds a runtime for a one-shot command without starting the
// gateway or the scheduler. Logs go to stderr so stdout stays clean.
func withRuntime(cmd *cobra.Command, flags *globalFlags, fn func(*app.Runtime) error) error {
	cfg, _, err := app.LoadConfig(flags.config)
	if err != nil {
		return err
	}
	params := flags.params()
	params.LogOutput = cmd.ErrOrStderr()
	if !flags.debug {
		cfg.Log.Level = "warn"
	}
	rt, err := app.Build(cmd.Context(), cfg, params)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	return fn(rt)
}

func askCmd(flags *globalFlags) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant one question from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withRuntime(cmd, flags, func(rt *app.Runtime) error {
				if err := rt.Corpus.Refresh(cmd.Context()); err != nil {
					if !rt.Corpus.Ready() {
						return fmt.Errorf("loading knowledge: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: knowledge refresh failed, answering from the current snapshot: %v\n", err)
				}
				resp, err := rt.Assistant.Chat(cmd.Context(), assistant.Request{
					SessionID: sessionID,
					UserID:    os.Getenv("USER"),
					Message:   question,
				})
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(resp)
				}
				printAnswer(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	return cmd
}

func printAnswer(w io.Writer, resp *assistant.Response) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "  [%s] %s (%.2f)\n", s.Type, s.Title, s.Score)
		}
	}
	var notes []string
	if resp.Fallback {
		notes = append(notes, "fallback")
	}
	if resp.Cached {
		notes = append(notes, "cached")
	}
	if resp.Model != "" {
		notes = append(notes, "model "+resp.Model)
	}
	notes = append(notes, fmt.Sprintf("confidence %.2f", resp.Confidence))
	fmt.Fprintf(w, "\nsession %s, %s\n", resp.SessionID, strings.Join(notes, ", "))
}

func reindexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Fetch the knowledge source and re-embed every document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, flags, func(rt *app.Runtime) error {
				if err := rt.Corpus.Reindex(cmd.Context()); err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), rt.Corpus.Stats())
				return nil
			})
		},
	}
}

func printStats(w io.Writer, st knowledge.Stats) {
	fmt.Fprintf(w, "Indexed %d documents (version %d)\n", st.Documents, st.Version)
	for _, t := range knowledge.Types {
		fmt.Fprintf(w, "  %-8s %d\n", t, st.ByType[t])
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", st.LastError)
	}
}
