package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbtlineage/internal/core"
	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

// entityFlags collects the lineage-bearing fields shared by designs and builds.
type entityFlags struct {
	name      string
	alias     string
	sequence  string
	mutations string
	parent    string
}

func (f *entityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.alias, "alias", "", "alias used for fuzzy matching")
	cmd.Flags().StringVar(&f.sequence, "sequence", "", "raw sequence (required)")
	cmd.Flags().StringVar(&f.mutations, "mutations", "", "comma-separated mutations relative to the parent")
	cmd.Flags().StringVar(&f.parent, "parent", "", "parent entity id")
	_ = cmd.MarkFlagRequired("sequence")
}

func (f *entityFlags) lineage() domain.Lineage {
	l := domain.Lineage{
		Sequence:  f.sequence,
		Mutations: lineage.DedupeMutations(lineage.ParseMutations(f.mutations)),
	}
	if f.parent != "" {
		parent := f.parent
		l.ParentID = &parent
	}
	return l
}

func newDesignCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "design",
		Short: "Manage designs",
	}
	cmd.AddCommand(
		newDesignAddCmd(a),
		storeCommand(&cobra.Command{
			Use:   "show ID",
			Short: "Print a design",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := a.svc.GetDesign(args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), d)
			},
		}),
		newLineageCmd(a, core.EntityDesign),
		newVerifyCmd(a, core.EntityDesign),
	)
	return cmd
}

func newDesignAddCmd(a *app) *cobra.Command {
	var (
		fields entityFlags
		kind   string
		ensure bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a design; lineage fields are derived",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := domain.Design{
				Lineage:      fields.lineage(),
				Name:         fields.name,
				Alias:        fields.alias,
				SequenceKind: domain.SequenceKind(kind),
			}
			if ensure {
				got, created, err := a.svc.EnsureDesign(cmd.Context(), d)
				if err != nil {
					return err
				}
				if !created {
					a.log.Info("design already exists", "id", got.ID, "lineage_hash", got.LineageHash)
				}
				return writeJSON(cmd.OutOrStdout(), got)
			}
			created, _, err := a.svc.CreateDesign(cmd.Context(), d)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), created)
		},
	}
	fields.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", string(domain.SequenceProtein), "sequence kind: protein|dna")
	cmd.Flags().BoolVar(&ensure, "ensure", false, "return the existing design when the lineage hash is already stored")
	return storeCommand(cmd)
}

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Manage builds",
	}
	cmd.AddCommand(
		newBuildAddCmd(a),
		storeCommand(&cobra.Command{
			Use:   "status ID STATUS",
			Short: "Move a build to a new workflow status",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, _, err := a.svc.UpdateBuildStatus(cmd.Context(), args[0], domain.BuildStatus(args[1]))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), b)
			},
		}),
		newLineageCmd(a, core.EntityBuild),
		newVerifyCmd(a, core.EntityBuild),
	)
	return cmd
}

func newBuildAddCmd(a *app) *cobra.Command {
	var (
		fields        entityFlags
		designID      string
		constructType string
		status        string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a build realizing a design",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			created, _, err := a.svc.CreateBuild(cmd.Context(), domain.Build{
				Lineage:       fields.lineage(),
				Name:          fields.name,
				Alias:         fields.alias,
				DesignID:      designID,
				ConstructType: constructType,
				Status:        domain.BuildStatus(status),
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), created)
		},
	}
	fields.register(cmd)
	cmd.Flags().StringVar(&designID, "design", "", "id of the realized design (required)")
	cmd.Flags().StringVar(&constructType, "construct-type", "", "construct type, e.g. plasmid")
	cmd.Flags().StringVar(&status, "status", string(domain.BuildStatusPlanned), "initial workflow status")
	_ = cmd.MarkFlagRequired("design")
	return storeCommand(cmd)
}

func newLineageCmd(a *app, kind core.EntityType) *cobra.Command {
	return storeCommand(&cobra.Command{
		Use:   "lineage ID",
		Short: fmt.Sprintf("Print the %s ancestry from ID to its root", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := a.svc.LineageOf(kind, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for depth, c := range chain {
				id, hash, name := candidateSummary(c)
				if _, err := fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", depth, id, hash, name); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func newVerifyCmd(a *app, kind core.EntityType) *cobra.Command {
	return storeCommand(&cobra.Command{
		Use:   "verify",
		Short: fmt.Sprintf("Recompute every stored %s lineage hash", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checks, err := a.svc.VerifyLineage(kind)
			if err != nil {
				return err
			}
			invalid := 0
			for _, c := range checks {
				if !c.Valid {
					invalid++
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), checks); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d %s lineage hashes do not verify", invalid, len(checks), kind)
			}
			return nil
		},
	})
}

func candidateSummary(c domain.Candidate) (id, hash, name string) {
	switch {
	case c.Design != nil:
		return c.Design.ID, c.Design.LineageHash, c.Design.Name
	case c.Build != nil:
		return c.Build.ID, c.Build.LineageHash, c.Build.Name
	}
	return "", "", ""
}
