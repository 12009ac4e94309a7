package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"herald/internal/components"
	"herald/internal/utils/hash"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print the sources tracked by the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		storageComp := components.NewStorageComponent(cfg.Storage)
		if err := storageComp.Validate(); err != nil {
			return err
		}
		if err := storageComp.Initialize(ctx); err != nil {
			return err
		}
		defer storageComp.Close(ctx)

		ledger, err := storageComp.Store().Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}

		names := make(map[string]string, len(cfg.Sources))
		for _, src := range cfg.Sources {
			names[hash.Identity(src.URL)] = src.Name()
		}

		identities := make([]string, 0, len(ledger))
		for identity := range ledger {
			identities = append(identities, identity)
		}
		sort.Strings(identities)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tSOURCE\tRECORDS")
		for _, identity := range identities {
			name, ok := names[identity]
			if !ok {
				name = "(not configured)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\n", identity, name, len(ledger[identity]))
		}
		fmt.Fprintf(w, "\n%d sources, %d records\n", len(ledger), ledger.Records())
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}
