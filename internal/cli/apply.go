package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagetint/internal/colour"
	"github.com/jmylchreest/pagetint/internal/content"
	"github.com/jmylchreest/pagetint/internal/dom/htmldom"
	"github.com/jmylchreest/pagetint/internal/dynbg"
	"github.com/jmylchreest/pagetint/internal/scheduler"
	"github.com/jmylchreest/pagetint/internal/security"
)

// pageOptions select how a page is themed.
type pageOptions struct {
	host   string
	color  string
	output string
	width  float64
	height float64
}

func (o *pageOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.host, "host", "", "site whose stored theme is applied")
	f.StringVar(&o.color, "color", "", "apply this colour instead of a stored theme")
	f.StringVarP(&o.output, "output", "o", "", "write the themed page here (default stdout)")
	f.Float64Var(&o.width, "width", htmldom.DefaultViewportWidth, "viewport width in CSS pixels")
	f.Float64Var(&o.height, "height", htmldom.DefaultViewportHeight, "viewport height in CSS pixels")
	f.Int("batch-size", 0, "elements examined per scheduler turn")
}

func (o *pageOptions) validate() error {
	if o.host == "" && o.color == "" {
		return errors.New("one of --host or --color is required")
	}
	if o.host != "" {
		host, err := security.NormalizeHost(o.host)
		if err != nil {
			return err
		}
		o.host = host
	}
	if o.width <= 0 || o.height <= 0 {
		return fmt.Errorf("viewport must be positive, got %vx%v", o.width, o.height)
	}
	return nil
}

// themedPage is a page run to convergence.
type themedPage struct {
	html      []byte
	overrides []dynbg.Override
	stats     dynbg.Stats
	blending  bool
}

func newApplyCmd(a *app) *cobra.Command {
	opts := &pageOptions{}
	var report bool

	cmd := &cobra.Command{
		Use:   "apply <page.html>",
		Short: "Theme an HTML page",
		Long: `Theme an HTML page with a stored site theme or a single colour.

The page is loaded, themed until no further changes are made, and written out
with the theme stylesheet and background overrides inlined.

Examples:
  # Apply the stored theme for a site
  pagetint apply --host example.com page.html -o themed.html

  # Blend toward a colour and list what changed
  pagetint apply --color "#222222" --report page.html -o themed.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			src, err := security.ReadFile(args[0], security.MaxPageBytes)
			if err != nil {
				return fmt.Errorf("failed to read page: %w", err)
			}

			var configs content.ConfigSource
			if opts.color == "" {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				configs = st
			}

			page, err := a.themePage(cmd.Context(), src, opts, configs)
			if err != nil {
				return err
			}
			a.logger.Info("page themed",
				"page", args[0],
				"overrides", len(page.overrides),
				"scans", page.stats.Scans,
				"errors", page.stats.Errors)

			if err := writeOutput(cmd.OutOrStdout(), opts.output, page.html); err != nil {
				return err
			}

			if report {
				w := cmd.ErrOrStderr()
				if opts.output != "" {
					w = cmd.OutOrStdout()
				}
				printReport(w, page)
			}
			return nil
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&report, "report", false, "print every background override")
	return cmd
}

// themePage parses src, applies the colour or the stored theme for the host
// and drains the engine. configs may be nil when a colour is given.
func (a *app) themePage(ctx context.Context, src []byte, opts *pageOptions, configs content.ConfigSource) (*themedPage, error) {
	doc, err := htmldom.Parse(bytes.NewReader(src),
		htmldom.WithViewport(opts.width, opts.height),
		htmldom.WithLogger(a.logger.Named("htmldom")))
	if err != nil {
		return nil, err
	}

	loop := scheduler.NewLoop()
	ctl := content.NewController(doc,
		content.WithScheduler(loop),
		content.WithLogger(a.logger.Named("content")),
		content.WithBlendSettings(a.cfg.Blend.Settings()),
		content.WithBatchSize(a.cfg.Blend.BatchSize))

	if opts.color != "" {
		err = ctl.ApplyColor(opts.color)
	} else {
		err = ctl.Init(ctx, configs, opts.host)
	}
	if err != nil {
		return nil, err
	}
	ran := loop.Drain()
	a.logger.Trace("engine drained", "callbacks", ran)

	page := &themedPage{blending: ctl.Blending()}
	if ap := ctl.Applier(); ap != nil {
		page.overrides = ap.Overrides()
		page.stats = ap.Stats()
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	page.html = buf.Bytes()
	return page, nil
}

// writeOutput writes data to path, or to stdout when path is "" or "-".
// Files are replaced atomically.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func printReport(w io.Writer, page *themedPage) {
	if len(page.overrides) == 0 {
		fmt.Fprintln(w, "No backgrounds changed.")
		return
	}

	table := NewTable([]string{"Element", "Before", "After", "Weight"})
	for _, o := range page.overrides {
		table.AddRow([]string{
			fmt.Sprint(o.Element),
			swatchCell(o.Baseline),
			swatchCell(o.Applied),
			fmt.Sprintf("%.2f", o.Weight),
		})
	}
	fmt.Fprint(w, table.Render())
	fmt.Fprintf(w, "\n%d override(s), %d scan(s), %d element(s) evaluated\n",
		len(page.overrides), page.stats.Scans, page.stats.Evaluated)
}

func swatchCell(c colour.RGBA) string {
	if s := colour.Swatch(c, 2); s != "" {
		return s + " " + c.Hex()
	}
	return c.Hex()
}
