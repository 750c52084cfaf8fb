package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/defectcriteria/library"
)

// FindingResult is the outcome for one finding.
type FindingResult struct {
	ID           string `json:"id"`
	Matched      bool   `json:"matched"`
	RuleID       string `json:"ruleId,omitempty"`
	Priority     string `json:"priority,omitempty"`
	Color        string `json:"color,omitempty"`
	AutoFlag     bool   `json:"autoFlag"`
	AlertMessage string `json:"alertMessage,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EvaluateReport is the output of the evaluate command.
type EvaluateReport struct {
	ProcedureID     string          `json:"procedureId"`
	ProcedureNumber string          `json:"procedureNumber"`
	Version         int             `json:"version"`
	Results         []FindingResult `json:"results"`
	Matched         int             `json:"matched"`
	Flagged         int             `json:"flagged"`
	Failed          int             `json:"failed"`
}

func (r *EvaluateReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Procedure %s v%d (%s)\n", r.ProcedureNumber, r.Version, r.ProcedureID)
	for _, res := range r.Results {
		switch {
		case res.Error != "":
			fmt.Fprintf(&sb, "  %s: error: %s\n", res.ID, res.Error)
		case !res.Matched:
			fmt.Fprintf(&sb, "  %s: no match\n", res.ID)
		default:
			flag := ""
			if res.AutoFlag {
				flag = " [auto-flag]"
			}
			fmt.Fprintf(&sb, "  %s: %s (rule %s)%s %s\n", res.ID, res.Priority, res.RuleID, flag, res.AlertMessage)
		}
	}
	fmt.Fprintf(&sb, "%d findings, %d matched, %d flagged, %d failed", len(r.Results), r.Matched, r.Flagged, r.Failed)
	return sb.String()
}

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	Bundle    string
	Findings  string
	Procedure string
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate findings against a procedure of a bundle",
		Long: `Evaluate loads the bundle into memory and runs every finding of the
findings file through first-match evaluation.

Without --procedure the bundle must hold exactly one active procedure.
--procedure accepts a procedure id or a procedure number; a number picks
the highest version.`,
		Example: `  criteriactl evaluate --bundle criteria.yaml --findings findings.yaml
  criteriactl evaluate --bundle criteria.yaml --findings findings.yaml --procedure DC-001 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Bundle, "bundle", "b", "", "bundle file (required)")
	cmd.Flags().StringVarP(&opts.Findings, "findings", "f", "", "findings file (required)")
	cmd.Flags().StringVarP(&opts.Procedure, "procedure", "p", "", "procedure id or number")
	_ = cmd.MarkFlagRequired("bundle")
	_ = cmd.MarkFlagRequired("findings")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *EvaluateOptions) error {
	ctx := cmd.Context()
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	findings, err := LoadFindings(opts.Findings)
	if err != nil {
		return out.Fail(nil, WrapExitError(ExitCommandError, "failed to load findings", err))
	}

	s, err := openSession(ctx, opts.Bundle, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(nil, asExitError(err))
	}
	proc, err := s.procedure(opts.Procedure)
	if err != nil {
		return out.Fail(nil, asExitError(err))
	}
	out.VerboseLog("evaluating %d findings against %s v%d", len(findings), proc.Number, proc.Version)

	report := &EvaluateReport{
		ProcedureID:     proc.ID,
		ProcedureNumber: proc.Number,
		Version:         proc.Version,
		Results:         make([]FindingResult, 0, len(findings)),
	}
	for _, f := range findings {
		res := FindingResult{ID: f.ID}
		result, err := s.engine.Evaluate(ctx, proc.ID, f.Finding)
		switch {
		case err != nil:
			res.Error = err.Error()
			report.Failed++
		case result.Matched:
			res.Matched = true
			res.RuleID = result.Rule.ID
			res.AutoFlag = result.AutoFlag
			res.AlertMessage = result.AlertMessage
			res.Priority = s.resolver.ResolveLabel(ctx, library.Priority, result.Rule.PriorityID)
			if rgb, ok := s.resolver.ResolveColor(ctx, result.Rule.PriorityID); ok {
				res.Color = rgb.Hex()
			}
			report.Matched++
			if res.AutoFlag {
				report.Flagged++
			}
		}
		out.VerboseLog("%s: matched=%t", f.ID, res.Matched)
		report.Results = append(report.Results, res)
	}

	if report.Failed > 0 {
		return out.Fail(report, NewExitError(ExitFailure, fmt.Sprintf("%d findings could not be evaluated", report.Failed)))
	}
	return out.Success(report)
}
