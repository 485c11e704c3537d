package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/ookla"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the source datasets into the cache",
	Long:  "Resolves the OSM, Ookla and VIIRS sources named in the config, downloading anything not yet cached, and prints the local paths.",
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := newSources(cfg).Resolve(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tPATH")
	for _, p := range loc.POIs {
		_, _ = fmt.Fprintf(w, "osm pois\t%s\n", p)
	}
	_, _ = fmt.Fprintf(w, "osm roads\t%s\n", loc.Roads)
	for _, kind := range ookla.Kinds {
		_, _ = fmt.Fprintf(w, "ookla %s\t%s\n", kind, loc.Ookla[kind])
	}
	_, _ = fmt.Fprintf(w, "viirs\t%s\n", loc.Nightlights)
	return w.Flush()
}
