package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagetint/internal/colour"
	"github.com/jmylchreest/pagetint/internal/dynbg"
)

// WCAG 2 thresholds for normal and large text.
const (
	contrastAA      = 4.5
	contrastAALarge = 3.0
	contrastAAA     = 7.0
)

func newContrastCmd(a *app) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "contrast <text> <background>",
		Short: "Print the contrast ratio of two colours",
		Long: `Print the WCAG contrast ratio of a text colour over a background.

Translucent colours are flattened over white first. With --target, also show
how the background would be blended toward the target under the configured
tunables.

Examples:
  pagetint contrast "#000000" "#ffffff"
  pagetint contrast "#111" "rgba(255, 255, 255, 0.9)" --target "#222222"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := parseColourArg(args[0])
			if err != nil {
				return err
			}
			bg, err := parseColourArg(args[1])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			ratio := colour.ContrastRatio(text, bg)
			fmt.Fprintf(w, "Contrast: %.2f:1\n", ratio)
			fmt.Fprintf(w, "AA normal text: %s\n", passLabel(ratio >= contrastAA))
			fmt.Fprintf(w, "AA large text:  %s\n", passLabel(ratio >= contrastAALarge))
			fmt.Fprintf(w, "AAA:            %s\n", passLabel(ratio >= contrastAAA))

			if target == "" {
				return nil
			}
			tc, err := parseColourArg(target)
			if err != nil {
				return err
			}

			settings := a.cfg.Blend.Settings()
			d := dynbg.Decide(bg, text, tc, settings)
			fmt.Fprintln(w)
			if !d.Apply {
				fmt.Fprintf(w, "Blend: none (initial weight %.2f, min contrast %.2f)\n", d.Initial, settings.MinContrast)
				return nil
			}
			fmt.Fprintf(w, "Blend: %s -> %s\n", swatchCell(bg), swatchCell(d.Blended))
			fmt.Fprintf(w, "Weight: %.2f (initial %.2f, %d decay step(s))\n", d.Weight, d.Initial, d.Steps)
			fmt.Fprintf(w, "Contrast after blend: %.2f:1\n", d.Contrast)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "show the blend toward this colour")
	return cmd
}

func parseColourArg(s string) (colour.RGBA, error) {
	c, ok := colour.Parse(s)
	if !ok {
		return colour.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return c, nil
}

func passLabel(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}
