package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagetint/internal/security"
	"github.com/jmylchreest/pagetint/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	opts := &pageOptions{}
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "watch <page.html>",
		Short: "Re-theme a page whenever it or the settings store changes",
		Long: `Theme a page like apply, then keep watching the settings store and the
page's directory. The output is rewritten only when the themed page changes.

Examples:
  pagetint watch --host example.com page.html -o themed.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			if opts.output == "" || opts.output == "-" {
				return errors.New("watch requires --output")
			}
			ctx := cmd.Context()
			pagePath := args[0]

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			storeEvents, err := watch.Dir(ctx, a.cfg.Store.Dir, delay, a.logger.Named("watch"))
			if err != nil {
				return fmt.Errorf("failed to watch store: %w", err)
			}
			pageEvents, err := watch.Dir(ctx, filepath.Dir(pagePath), delay, a.logger.Named("watch"))
			if err != nil {
				return fmt.Errorf("failed to watch page: %w", err)
			}

			var last uint64
			render := func() {
				src, err := security.ReadFile(pagePath, security.MaxPageBytes)
				if err != nil {
					a.logger.Error("failed to read page", "page", pagePath, "error", err)
					return
				}
				page, err := a.themePage(ctx, src, opts, st)
				if err != nil {
					a.logger.Error("failed to theme page", "page", pagePath, "error", err)
					return
				}
				sum := xxhash.Sum64(page.html)
				if sum == last {
					a.logger.Debug("output unchanged", "output", opts.output)
					return
				}
				if err := writeOutput(cmd.OutOrStdout(), opts.output, page.html); err != nil {
					a.logger.Error("failed to write output", "output", opts.output, "error", err)
					return
				}
				last = sum
				a.logger.Info("page themed", "output", opts.output, "overrides", len(page.overrides))
			}

			render()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-storeEvents:
					if !ok {
						return nil
					}
					a.logger.Debug("store changed", "file", ev.Name)
					render()
				case ev, ok := <-pageEvents:
					if !ok {
						return nil
					}
					if samePath(ev.Name, opts.output) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
						continue
					}
					a.logger.Debug("page directory changed", "file", ev.Name)
					render()
				}
			}
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().DurationVar(&delay, "debounce", watch.DefaultDelay, "quiet period before re-theming")
	return cmd
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
