package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagetint/internal/colour"
	"github.com/jmylchreest/pagetint/internal/security"
	"github.com/jmylchreest/pagetint/internal/siteconfig"
	"github.com/jmylchreest/pagetint/internal/store"
)

func newSiteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage per-site themes",
		Long: `Manage the theme stored for a site.

A theme is either a single colour or a JSON object overlaid on the defaults,
for example:

  pagetint site set example.com "#222222"
  pagetint site set example.com '{"mode":"gradient","gradient":{"type":"radial"}}'`,
	}

	cmd.AddCommand(newSiteSetCmd(a))
	cmd.AddCommand(newSiteShowCmd(a))
	cmd.AddCommand(newSiteRemoveCmd(a))
	return cmd
}

// parseTheme reads a colour or a partial JSON config.
func parseTheme(arg string) (siteconfig.Config, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "{") {
		cfg, err := siteconfig.Merge(json.RawMessage(arg))
		if err != nil {
			return siteconfig.Config{}, fmt.Errorf("invalid theme: %w", err)
		}
		if cfg.Mode == siteconfig.ModeImage && strings.TrimSpace(cfg.Image.URL) != "" {
			if err := security.ValidateImageURL(cfg.Image.URL); err != nil {
				return siteconfig.Config{}, fmt.Errorf("invalid theme: %w", err)
			}
		}
		return cfg, nil
	}
	if _, ok := colour.Parse(arg); !ok {
		return siteconfig.Config{}, fmt.Errorf("invalid colour %q", arg)
	}
	return siteconfig.WithColor(arg), nil
}

func newSiteSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <host> <colour|json>",
		Short: "Store the theme for a site",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := security.NormalizeHost(args[0])
			if err != nil {
				return err
			}
			cfg, err := parseTheme(args[1])
			if err != nil {
				return err
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetSiteConfig(cmd.Context(), host, cfg); err != nil {
				return fmt.Errorf("failed to save theme: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s theme saved\n", host, cfg.Mode)
			return nil
		},
	}
}

func newSiteShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <host>",
		Short: "Print the effective theme for a site as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.siteConfig(cmd, args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newSiteRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <host>",
		Aliases: []string{"rm"},
		Short:   "Remove the theme for a site",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			host := strings.ToLower(strings.TrimSpace(args[0]))
			if err := st.RemoveSiteConfig(cmd.Context(), host); err != nil {
				return fmt.Errorf("failed to remove theme: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", host)
			return nil
		},
	}
}

func newCSSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "css <host>",
		Short: "Print the stylesheet injected for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.siteConfig(cmd, args[0])
			if err != nil {
				return err
			}
			if !cfg.Enabled {
				return fmt.Errorf("theme for %s is disabled", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), siteconfig.BuildCSS(cfg))
			return nil
		},
	}
}

func (a *app) siteConfig(cmd *cobra.Command, host string) (siteconfig.Config, error) {
	host, err := security.NormalizeHost(host)
	if err != nil {
		return siteconfig.Config{}, err
	}
	st, err := a.openStore(cmd.Context())
	if err != nil {
		return siteconfig.Config{}, err
	}
	defer st.Close()

	cfg, err := st.SiteConfig(cmd.Context(), host)
	if errors.Is(err, store.ErrNotFound) {
		return siteconfig.Config{}, fmt.Errorf("no theme stored for %s", host)
	}
	return cfg, err
}
