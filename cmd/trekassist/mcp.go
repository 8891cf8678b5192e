package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flemzord/trekassist/internal/mcpserver"
	"github.com/flemzord/trekassist/pkg/app"
)

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve knowledge and escalation tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, flags, func(rt *app.Runtime) error {
				if err := rt.Corpus.Refresh(cmd.Context()); err != nil && !rt.Corpus.Ready() {
					return fmt.Errorf("loading knowledge: %w", err)
				}
				srv := mcpserver.New(version, rt.Corpus, rt.Sessions)
				return mcpserver.ServeStdio(cmd.Context(), srv)
			})
		},
	}
}
