package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/propsignal/propsync/internal/propdata"
)

var catalogFormat string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Export the data-source catalog",
	Long:  "Prints the data_sources catalog as JSON or YAML.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := propdata.ListCatalog(ctx, pool)
		if err != nil {
			return eris.Wrap(err, "catalog")
		}

		return writeCatalog(os.Stdout, entries, catalogFormat)
	},
}

func init() {
	catalogCmd.Flags().StringVar(&catalogFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(catalogCmd)
}

func writeCatalog(out io.Writer, entries []propdata.CatalogEntry, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return eris.Wrap(err, "catalog: encode json")
		}
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		if err := enc.Encode(entries); err != nil {
			return eris.Wrap(err, "catalog: encode yaml")
		}
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
	return nil
}
