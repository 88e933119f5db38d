package internal

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// Rule routes a registry event to a topic when its expression matches.
// Drivers optionally restricts the publish to a subset of configured
// publisher drivers.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    string   `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is one emitted topic plus the drivers it should go to.
// Empty Drivers means all configured drivers.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    string
	drivers []string
	expr    *govaluate.EvaluableExpression
	paths   map[string]string
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

func NewRuleEngine(rules []Rule, strict bool, logger *log.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = NewLogger("rules")
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		compiled = append(compiled, compiledRule{
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			paths:   paths,
		})
	}

	return &RuleEngine{rules: compiled, strict: strict, logger: logger}, nil
}

// Evaluate runs every rule against the event and returns the matches.
// A rule that errors (missing field, type mismatch) simply does not
// match; in strict mode the error is also logged.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if len(r.rules) == 0 {
		return nil
	}

	params := newRuleParameters(event)

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		result, err := rule.expr.Eval(&pathParameters{base: params, paths: rule.paths})
		if err != nil {
			if r.strict {
				r.logger.Printf("rule %q eval failed: %v", rule.emit, err)
			}
			continue
		}
		if ok, _ := result.(bool); ok {
			matches = append(matches, RuleMatch{Topic: rule.emit, Drivers: rule.drivers})
		}
	}
	return matches
}

// ruleParameters resolves variables against the event payload. Bare
// dotted paths like "repository.full_name" hit the flattened map;
// "$." prefixed names are resolved with JSONPath against the raw
// document.
type ruleParameters struct {
	flat map[string]interface{}
	doc  interface{}
}

func newRuleParameters(event Event) *ruleParameters {
	data := event.Data
	if len(event.RawPayload) > 0 {
		var decoded map[string]interface{}
		if err := json.Unmarshal(event.RawPayload, &decoded); err == nil {
			data = decoded
		}
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	flat := Flatten(data)
	flat["provider"] = event.Provider
	flat["event"] = event.Name
	if event.Repository != "" {
		flat["repository"] = event.Repository
	}
	if event.Package != "" {
		flat["package"] = event.Package
	}
	if event.Version != "" {
		flat["version"] = event.Version
	}

	return &ruleParameters{flat: flat, doc: toJSONValue(data)}
}

func (p *ruleParameters) Get(name string) (interface{}, error) {
	if strings.HasPrefix(name, "$") {
		value, err := jsonpath.Get(name, p.doc)
		if err != nil {
			return nil, err
		}
		return value, nil
	}
	if value, ok := p.flat[name]; ok {
		return value, nil
	}
	return nil, fmt.Errorf("unknown field %q", name)
}

// pathParameters maps the placeholder variables produced by
// rewritePaths back to their original path expressions.
type pathParameters struct {
	base  *ruleParameters
	paths map[string]string
}

func (p *pathParameters) Get(name string) (interface{}, error) {
	if original, ok := p.paths[name]; ok {
		return p.base.Get(original)
	}
	return p.base.Get(name)
}

// toJSONValue round-trips the value through encoding/json so JSONPath
// sees plain maps and slices regardless of the original types.
func toJSONValue(value interface{}) interface{} {
	encoded, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var decoded interface{}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return value
	}
	return decoded
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	// contains(collection, item) reports whether a slice holds item or
	// a string holds the substring. govaluate flattens array arguments
	// into the variadic list, so the last argument is the needle and
	// everything before it is the collection.
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("contains expects a collection and an item")
		}
		needle := args[len(args)-1]
		if len(args) == 2 {
			switch haystack := args[0].(type) {
			case []interface{}:
				for _, candidate := range haystack {
					if candidate == needle {
						return true, nil
					}
				}
				return false, nil
			case string:
				if sub, ok := needle.(string); ok {
					return strings.Contains(haystack, sub), nil
				}
				return false, nil
			}
		}
		for _, candidate := range args[:len(args)-1] {
			if candidate == needle {
				return true, nil
			}
		}
		return false, nil
	},
	// like(str, pattern) matches a SQL-style pattern where % is a
	// wildcard.
	"like": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("like expects 2 arguments")
		}
		str, ok := args[0].(string)
		if !ok {
			return false, nil
		}
		pattern, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("like pattern must be a string")
		}
		parts := strings.Split(pattern, "%")
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		matched, err := regexp.MatchString("^"+strings.Join(parts, ".*")+"$", str)
		if err != nil {
			return nil, err
		}
		return matched, nil
	},
}

var pathToken = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])+|\$(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])+`)

// rewritePaths replaces dotted and JSONPath variable references with
// placeholder names govaluate can parse, returning the rewritten
// expression and the placeholder-to-path table. Quoted string
// literals are left untouched.
func rewritePaths(expr string) (string, map[string]string) {
	paths := make(map[string]string)
	var out strings.Builder
	rest := expr
	for {
		quote := strings.IndexAny(rest, `"'`)
		if quote < 0 {
			out.WriteString(rewriteSegment(rest, paths))
			break
		}
		out.WriteString(rewriteSegment(rest[:quote], paths))
		closing := strings.IndexByte(rest[quote+1:], rest[quote])
		if closing < 0 {
			out.WriteString(rest[quote:])
			break
		}
		end := quote + 1 + closing + 1
		out.WriteString(rest[quote:end])
		rest = rest[end:]
	}
	return out.String(), paths
}

func rewriteSegment(segment string, paths map[string]string) string {
	return pathToken.ReplaceAllStringFunc(segment, func(token string) string {
		// govaluate rejects identifiers starting with underscores, so
		// the placeholder must look like a plain variable.
		placeholder := fmt.Sprintf("pathvar%d", len(paths))
		paths[placeholder] = token
		return placeholder
	})
}
