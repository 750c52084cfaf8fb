package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidateReport summarizes a valid bundle.
type ValidateReport struct {
	Procedures []ProcedureSummary `json:"procedures"`
}

// ProcedureSummary is one procedure of a valid bundle.
type ProcedureSummary struct {
	ID      string `json:"id"`
	Number  string `json:"procedureNumber"`
	Version int    `json:"version"`
	Status  string `json:"status"`
	Rules   int    `json:"rules"`
}

func (r *ValidateReport) String() string {
	var sb strings.Builder
	sb.WriteString("Bundle is valid\n")
	for _, p := range r.Procedures {
		fmt.Fprintf(&sb, "  %s v%d [%s]: %d rules\n", p.Number, p.Version, p.Status, p.Rules)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var bundlePath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a bundle loads",
		Long: `Validate loads the bundle into memory. Every procedure and rule goes through
the same validation as API writes, including library taxonomy checks.`,
		Example: `  criteriactl validate --bundle criteria.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}

			s, err := openSession(cmd.Context(), bundlePath, cmd.ErrOrStderr())
			if err != nil {
				return out.Fail(nil, asExitError(err))
			}

			report := &ValidateReport{}
			for _, p := range s.loaded.Procedures {
				report.Procedures = append(report.Procedures, ProcedureSummary{
					ID:      p.ID,
					Number:  p.Number,
					Version: p.Version,
					Status:  string(p.Status),
					Rules:   len(s.loaded.Rules[p.ID]),
				})
			}
			return out.Success(report)
		},
	}

	cmd.Flags().StringVarP(&bundlePath, "bundle", "b", "", "bundle file (required)")
	_ = cmd.MarkFlagRequired("bundle")

	return cmd
}
