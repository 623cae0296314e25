package main

import (
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/password"
	"github.com/spf13/cobra"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print an argon2id hash for a credential record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := goGuard.DefaultConfig().Password
			hasher, err := password.NewHasher(password.Config{
				Memory:           cfg.Memory,
				Time:             cfg.Time,
				Parallelism:      cfg.Parallelism,
				SaltLength:       cfg.SaltLength,
				KeyLength:        cfg.KeyLength,
				MaxPasswordBytes: cfg.MaxPasswordBytes,
			})
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
