package main

import (
	"github.com/spf13/cobra"

	"dbtlineage/internal/matching"
	"dbtlineage/pkg/domain"
)

// matchOutput is the JSON rendering of a matcher result.
type matchOutput struct {
	Matched    bool                   `json:"matched"`
	DesignID   *string                `json:"design_id,omitempty"`
	BuildID    *string                `json:"build_id,omitempty"`
	Confidence domain.MatchConfidence `json:"confidence"`
	Method     domain.MatchMethod     `json:"method"`
	Score      float64                `json:"score"`
}

func newMatchCmd(a *app) *cobra.Command {
	var row matching.Row
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve identifying fields to a design or build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := matching.New(a.svc.Store()).Match(cmd.Context(), row)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), matchOutput{
				Matched:    res.Matched,
				DesignID:   res.DesignID,
				BuildID:    res.BuildID,
				Confidence: res.Confidence,
				Method:     res.Method,
				Score:      res.Score,
			})
		},
	}
	cmd.Flags().StringVar(&row.Sequence, "sequence", "", "raw sequence")
	cmd.Flags().StringVar(&row.Mutations, "mutations", "", "comma-separated mutation list")
	cmd.Flags().StringVar(&row.Alias, "alias", "", "alias or name")
	return storeCommand(cmd)
}
