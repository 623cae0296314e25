package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbosity int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "goguard",
		Short: "Token authentication and role/feature authorization service",
		Long: `goguard issues access and refresh tokens, rotates refresh tokens
with single-use semantics and gates HTTP operations by role and feature.`,
		SilenceUsage: true,
		Version:      version,
	}
	cmd.SetVersionTemplate(`{{printf "goguard version %s\n" .Version}}`)
	cmd.PersistentFlags().IntVarP(&opts.verbosity, "verbosity", "v", 0, "log verbosity")

	cmd.AddCommand(
		newServeCmd(opts),
		newHashPasswordCmd(),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) logger() logr.Logger {
	stdr.SetVerbosity(o.verbosity)
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.LUTC))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of goguard",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "goguard version %s\n", version)
		},
	}
}
