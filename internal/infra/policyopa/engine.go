package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"veritag/internal/domain"
)

const defaultQuery = "data.veritag.waiver.result"

// Engine evaluates the waiver carve-out from a Rego bundle, so a registry
// operator can extend the trusted/demo rules without a redeploy. Builtins are
// restricted to side-effect-free helpers.
type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, input domain.WaiverInput) (domain.WaiverDecision, error) {
	if e == nil {
		return domain.WaiverDecision{}, errors.New("waiver engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.WaiverDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.WaiverDecision{}, errors.New("empty waiver result")
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (domain.WaiverDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.WaiverDecision{}, err
	}
	var decision domain.WaiverDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.WaiverDecision{}, err
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
