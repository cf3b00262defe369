package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbtlineage/pkg/lineage"
)

func newHashCmd() *cobra.Command {
	var (
		parent    string
		mutations string
	)
	cmd := &cobra.Command{
		Use:   "hash SEQUENCE",
		Short: "Compute the lineage hash of a sequence",
		Long: "Normalizes SEQUENCE and hashes it together with the parent hash and\n" +
			"the comma-separated mutation list.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			muts := lineage.DedupeMutations(lineage.ParseMutations(mutations))
			hash, err := lineage.Compute(parent, muts, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "lineage hash of the parent entity")
	cmd.Flags().StringVar(&mutations, "mutations", "", "comma-separated mutation list")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize SEQUENCE",
		Short: "Print the normalized form of a sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := lineage.NormalizeSequence(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), normalized)
			return err
		},
	}
}
