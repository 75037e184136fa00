package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/nexus/core"
	"pkt.systems/nexus/internal/appconfig"
	"pkt.systems/nexus/internal/bridge"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

func newModelsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List local and online models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			inbound := core.NewInbound(logger)
			defer inbound.Close()
			b, err := bridge.Open(ctx, bridgeConfig(cfg), inbound, logger)
			if err != nil {
				return err
			}
			defer b.Close()
			return printCatalog(cmd.OutOrStdout(), bridge.ListModels(ctx, b))
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func printCatalog(out io.Writer, catalog bridge.Catalog) error {
	if err := printModels(out, "local", catalog.Local, catalog.LocalErr); err != nil {
		return err
	}
	return printModels(out, "online", catalog.Remote, catalog.RemoteErr)
}

func printModels(out io.Writer, label string, models []schema.ModelInfo, listErr error) error {
	if listErr != nil {
		_, err := fmt.Fprintf(out, "%s: unavailable (%v)\n", label, listErr)
		return err
	}
	if _, err := fmt.Fprintf(out, "%s: %d model(s)\n", label, len(models)); err != nil {
		return err
	}
	for _, m := range models {
		line := "  " + m.Name
		if m.Size > 0 {
			line += fmt.Sprintf(" (%.1f GB)", float64(m.Size)/1e9)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
