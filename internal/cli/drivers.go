package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/colstorm/internal/dbconn"
)

func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List supported database drivers and connection string forms",
		Long: `List the database drivers colstorm is built with.

A connection string is either a URL whose scheme selects the driver
(clickhouse://..., postgres://...) or "<driver>:<dsn>" where the DSN is passed
to the driver unchanged (duckdb:/tmp/bench.db, mysql:user:pass@tcp(host)/db).`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			renderDrivers(cmd.OutOrStdout())
		},
	}
}

func renderDrivers(w io.Writer) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Driver", "Aliases", "URL Schemes", "Example"})
	for _, d := range dbconn.Drivers() {
		t.AppendRow(table.Row{
			d.Name,
			joinOrDash(d.Aliases),
			joinOrDash(d.URLSchemes),
			d.Example,
		})
	}
	fmt.Fprintln(w, t.Render())
}

func joinOrDash(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}
