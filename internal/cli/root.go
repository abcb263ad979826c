// Package cli implements the justmemory command line.
package cli

import (
	"github.com/Voork1144/just-memory/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	project string
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "justmemory",
		Short:         "Temporal knowledge graph memory for agents",
		Long:          "justmemory stores memories that decay, strengthen on recall and link into a temporal graph searched by spreading activation.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.project, "project", "", "project id (default DEFAULT_PROJECT)")

	cmd.AddCommand(
		newServeCmd(),
		newStoreCmd(opts),
		newGetCmd(),
		newRecallCmd(),
		newListCmd(opts),
		newUpdateCmd(),
		newConfirmCmd(),
		newContradictCmd(),
		newDeleteCmd(),
		newSupersedeCmd(),
		newLinkCmd(opts),
		newEdgesCmd(),
		newInvalidateCmd(),
		newActivateCmd(),
		newSweepCmd(),
		newVersionCmd(),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
