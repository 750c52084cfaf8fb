package criteria

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/cel-go/cel"
)

const maxIdentifierLength = 100

// celCostLimit bounds a single validation rule evaluation.
const celCostLimit = 1000000

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier checks a custom parameter name: 1-100 characters,
// identifier syntax, not a reserved word.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s", identifierPattern.String())
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

// isReservedKeyword reports names that collide with CEL syntax or with the
// variables bound in validation rules.
func isReservedKeyword(name string) bool {
	switch name {
	case "true", "false", "null",
		"if", "else", "for", "while", "break", "continue", "return",
		"var", "let", "const", "function",
		"in", "as", "import", "package", "namespace", "loop", "void",
		"value", "params":
		return true
	}
	return false
}

// ParamRules compiles and evaluates the CEL validation rules of custom
// parameter definitions. Compiled programs are cached by expression.
// Safe for concurrent use.
type ParamRules struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewParamRules creates the CEL environment. Rules see `value`, the
// parameter's own value, and `params`, every custom value of the finding.
func NewParamRules() (*ParamRules, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &ParamRules{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile type-checks expr and caches the resulting program. The expression
// must produce a bool (or dyn, checked at evaluation time).
func (pr *ParamRules) Compile(expr string) (cel.Program, error) {
	pr.mu.RLock()
	prog, ok := pr.programs[expr]
	pr.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := pr.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}

	prog, err := pr.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(celCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	pr.mu.Lock()
	pr.programs[expr] = prog
	pr.mu.Unlock()
	return prog, nil
}

// Check evaluates every validation rule of def against value. It returns a
// descriptive error for the first rule that fails, errors, or yields a
// non-bool.
func (pr *ParamRules) Check(def CustomParameterDefinition, value Measurement, params map[string]Measurement) error {
	if len(def.ValidationRules) == 0 {
		return nil
	}

	vars := map[string]any{
		"value":  value.Interface(),
		"params": paramValues(params),
	}
	for _, expr := range def.ValidationRules {
		prog, err := pr.Compile(expr)
		if err != nil {
			return fmt.Errorf("rule %q: %w", expr, err)
		}
		out, _, err := prog.Eval(vars)
		if err != nil {
			return fmt.Errorf("rule %q: %w", expr, err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return fmt.Errorf("rule %q did not evaluate to bool", expr)
		}
		if !ok {
			return fmt.Errorf("rule %q not satisfied", expr)
		}
	}
	return nil
}

func paramValues(params map[string]Measurement) map[string]any {
	out := make(map[string]any, len(params))
	for name, m := range params {
		out[name] = m.Interface()
	}
	return out
}
