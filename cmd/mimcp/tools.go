package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mimcp/internal/app"
	"github.com/MrWong99/mimcp/internal/mcp/dispatch"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the advertised tool catalogue as JSON",
		Long: `Prints the same tool list a client receives from tools/list, including
each tool's input schema, and exits without starting a session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("initialise application: %w", err)
			}
			return printCatalogue(cmd.OutOrStdout(), application)
		},
	}
}

func printCatalogue(w io.Writer, a *app.App) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dispatch.ListTools(a.Registry())); err != nil {
		return fmt.Errorf("encode catalogue: %w", err)
	}
	return nil
}
