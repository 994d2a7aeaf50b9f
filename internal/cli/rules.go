package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagetint/internal/colour"
	"github.com/jmylchreest/pagetint/internal/security"
	"github.com/jmylchreest/pagetint/internal/store"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage per-domain colour rules",
		Long: `Manage per-domain colour rules and the default colour.

Colours are normalised to upper-case #RRGGBB; anything unparseable becomes
#FFFFFF.`,
	}

	cmd.AddCommand(newRulesListCmd(a))
	cmd.AddCommand(newRulesSetCmd(a))
	cmd.AddCommand(newRulesRemoveCmd(a))
	cmd.AddCommand(newRulesDefaultCmd(a))
	return cmd
}

func newRulesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List domain rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := st.Settings(cmd.Context())
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), settings)
			return nil
		},
	}
}

func newRulesSetCmd(a *app) *cobra.Command {
	var disabled bool

	cmd := &cobra.Command{
		Use:   "set <domain> <colour>",
		Short: "Add or replace the rule for a domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := security.NormalizeHost(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := st.UpdateRule(cmd.Context(), domain, store.Rule{Enabled: !disabled, Color: args[1]})
			if err != nil {
				return fmt.Errorf("failed to save rule: %w", err)
			}
			rule := settings.Rules[domain]
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", domain, rule.Color, enabledLabel(rule.Enabled))
			return nil
		},
	}

	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the rule switched off")
	return cmd
}

func newRulesRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <domain>",
		Aliases: []string{"rm"},
		Short:   "Remove the rule for a domain",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			domain := strings.ToLower(strings.TrimSpace(args[0]))
			if _, err := st.RemoveRule(cmd.Context(), domain); err != nil {
				return fmt.Errorf("failed to remove rule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", domain)
			return nil
		},
	}
}

func newRulesDefaultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "default <colour>",
		Short: "Set the colour used by domains without a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := st.Settings(ctx)
			if err != nil {
				return err
			}
			settings.DefaultColor = args[0]
			settings, err = st.SetSettings(ctx, settings)
			if err != nil {
				return fmt.Errorf("failed to save default colour: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default colour: %s\n", settings.DefaultColor)
			return nil
		},
	}
}

func printRules(w io.Writer, settings store.Settings) {
	fmt.Fprintf(w, "Default colour: %s\n\n", colourCell(settings.DefaultColor))
	if len(settings.Rules) == 0 {
		fmt.Fprintln(w, "No domain rules.")
		return
	}

	domains := make([]string, 0, len(settings.Rules))
	for d := range settings.Rules {
		domains = append(domains, d)
	}
	slices.Sort(domains)

	table := NewTable([]string{"Domain", "Colour", "State"})
	for _, d := range domains {
		rule := settings.Rules[d]
		table.AddRow([]string{d, colourCell(rule.Color), enabledLabel(rule.Enabled)})
	}
	fmt.Fprint(w, table.Render())
}

func colourCell(hex string) string {
	c, ok := colour.Parse(hex)
	if !ok {
		return hex
	}
	if s := colour.Swatch(c, 2); s != "" {
		return s + " " + hex
	}
	return hex
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
