package policyopa

import "github.com/open-policy-agent/opa/ast"

// Waiver bundles decide from the identifier and the trusted-source flag
// alone, so only string and collection builtins are available to them.
// Anything that can reach the network or the host stays out.
var allowedBuiltins = map[string]struct{}{
	"concat":      {},
	"contains":    {},
	"count":       {},
	"endswith":    {},
	"eq":          {},
	"equal":       {},
	"glob.match":  {},
	"lower":       {},
	"neq":         {},
	"object.get":  {},
	"regex.match": {},
	"replace":     {},
	"split":       {},
	"sprintf":     {},
	"startswith":  {},
	"substring":   {},
	"trim":        {},
	"trim_left":   {},
	"trim_right":  {},
	"upper":       {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
