package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVoicesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the installed voice packs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVoices(asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}

func runVoices(asJSON bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	profiles := store.Profiles()
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}

	if len(profiles) == 0 {
		fmt.Printf("no voice packs in %s\n", cfg.VoicesDir)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tGENDER\tLANGUAGE\tDEFAULT")
	for _, p := range profiles {
		def := ""
		if p.Name == cfg.DefaultVoice {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Label, p.Gender, p.Language, def)
	}
	return tw.Flush()
}
