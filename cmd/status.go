package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/propsignal/propsync/internal/propdata"
)

var statusRunsShown int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog and recent runs",
	Long:  "Displays per-source record counts and the outcomes of recent pipeline runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		var (
			entries []propdata.CatalogEntry
			runs    []propdata.RunEntry
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			entries, err = propdata.ListCatalog(gctx, pool)
			return err
		})
		g.Go(func() error {
			var err error
			runs, err = propdata.NewRunLog(pool).Recent(gctx, statusRunsShown)
			return err
		})
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "status")
		}

		formatCatalogStatus(os.Stdout, entries)
		fmt.Fprintln(os.Stdout)
		formatRunEntries(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRunsShown, "runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatCatalogStatus writes per-source record counts, grouping digits
// for readability.
func formatCatalogStatus(out io.Writer, entries []propdata.CatalogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Catalog is empty; run 'propsync run' to load sources.")
		return
	}

	p := message.NewPrinter(language.AmericanEnglish)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tNAME\tRECORDS\tLAST REFRESHED")
	_, _ = fmt.Fprintln(w, "------\t----\t-------\t--------------")
	for _, e := range entries {
		refreshed := "-"
		if e.LastRefreshed != nil {
			refreshed = e.LastRefreshed.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Name, e.DisplayName, p.Sprintf("%d", e.RecordCount), refreshed)
	}
	_ = w.Flush()
}

// formatRunEntries writes the recent-run table.
func formatRunEntries(out io.Writer, runs []propdata.RunEntry) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No pipeline runs recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---\t------\t-------\t--------\t-----")
	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.Status, r.StartedAt.Format("2006-01-02 15:04"), dur, truncate(r.Error, 60))
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
