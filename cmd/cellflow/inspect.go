package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pumped-fn/cells-go/pkg/graphfile"
	"github.com/pumped-fn/cells-go/pkg/render"
)

func newDotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dot FILE",
		Short: "Print the graph in Graphviz dot syntax",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			built, err := load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.DOT(built.Graph))
			return nil
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a graph file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			built, err := load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes, %d inputs)\n",
				args[0], built.Graph.Len(), len(built.Graph.Inputs()))
			return nil
		},
	}
}

func load(path string) (*graphfile.Built, error) {
	doc, err := graphfile.Load(path)
	if err != nil {
		return nil, err
	}
	return graphfile.Build(doc, nil)
}
