package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/model"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Model artifact commands",
}

var modelInspectCmd = &cobra.Command{
	Use:   "inspect <artifact>",
	Short: "Validate and describe a model artifact",
	Long:  "Loads a YAML or JSON model artifact, validates it, and prints its kind, target and feature list.",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelInspect,
}

func init() {
	modelCmd.AddCommand(modelInspectCmd)
	rootCmd.AddCommand(modelCmd)
}

func runModelInspect(cmd *cobra.Command, args []string) error {
	a, err := model.Load(args[0])
	if err != nil {
		return err
	}
	s := a.Summarize()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "name\t%s\n", s.Name)
	_, _ = fmt.Fprintf(w, "kind\t%s\n", s.Kind)
	_, _ = fmt.Fprintf(w, "target\t%s\n", s.Target)
	_, _ = fmt.Fprintf(w, "features\t%d\n", s.Features)
	if s.Trees > 0 {
		_, _ = fmt.Fprintf(w, "trees\t%d (%d nodes)\n", s.Trees, s.Nodes)
	}
	_, _ = fmt.Fprintf(w, "scaler\t%t\n", s.HasScaler)
	_, _ = fmt.Fprintln(w)
	for i, f := range a.Features {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", i, f)
	}
	return w.Flush()
}
