package router

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vyrodovalexey/bifrost/internal/config"
)

// ErrInvalidRoute is returned by New for a rule that cannot be served.
var ErrInvalidRoute = errors.New("invalid route")

// RouteRule binds a path prefix to one backend.
type RouteRule struct {
	Name         string
	Prefix       string
	Target       *url.URL
	RequiresAuth bool
	// Timeout bounds the backend call; zero means the proxy default.
	Timeout time.Duration

	matcher *PrefixMatcher
}

// Table is an immutable route table.
type Table struct {
	// rules are sorted by descending prefix length, so the first match is
	// the longest.
	rules []*RouteRule
}

// New validates rules and builds a table. Prefixes must start with "/",
// be unique after trailing slashes are trimmed and point at absolute
// http(s) targets.
func New(rules []RouteRule) (*Table, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: at least one route is required", ErrInvalidRoute)
	}

	seen := make(map[string]string, len(rules))
	compiled := make([]*RouteRule, 0, len(rules))

	for i := range rules {
		rule := rules[i]

		prefix, err := normalizePrefix(rule.Prefix)
		if err != nil {
			return nil, fmt.Errorf("%w: route %q: %v", ErrInvalidRoute, rule.Name, err)
		}
		if other, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("%w: route %q: prefix %s already used by route %q",
				ErrInvalidRoute, rule.Name, prefix, other)
		}
		if err := validateTarget(rule.Target); err != nil {
			return nil, fmt.Errorf("%w: route %q: %v", ErrInvalidRoute, rule.Name, err)
		}
		if rule.Name == "" {
			rule.Name = prefix
		}
		seen[prefix] = rule.Name

		target := *rule.Target
		rule.Target = &target
		rule.Prefix = prefix
		rule.matcher = NewPrefixMatcher(prefix)
		compiled = append(compiled, &rule)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].Prefix) > len(compiled[j].Prefix)
	})

	return &Table{rules: compiled}, nil
}

// FromConfig builds a table from configured routes.
func FromConfig(routes []config.RouteConfig) (*Table, error) {
	rules := make([]RouteRule, 0, len(routes))
	for _, rc := range routes {
		target, err := url.Parse(rc.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: route %q: target: %v", ErrInvalidRoute, rc.Name, err)
		}
		rules = append(rules, RouteRule{
			Name:         rc.Name,
			Prefix:       rc.Prefix,
			Target:       target,
			RequiresAuth: rc.RequiresAuth,
			Timeout:      rc.RouteTimeout(),
		})
	}
	return New(rules)
}

// Resolve returns the rule with the longest prefix matching path.
func (t *Table) Resolve(path string) (*RouteRule, bool) {
	if path == "" {
		path = "/"
	}
	for _, rule := range t.rules {
		if rule.matcher.Match(path) {
			return rule, true
		}
	}
	return nil, false
}

// Rules returns the rules in match order.
func (t *Table) Rules() []*RouteRule {
	out := make([]*RouteRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// StripPrefix returns the path forwarded to the rule's backend: path
// without the rule's prefix, or "/" when nothing remains.
func StripPrefix(rule *RouteRule, path string) string {
	return rule.matcher.Strip(path)
}

func normalizePrefix(prefix string) (string, error) {
	if !strings.HasPrefix(prefix, "/") {
		return "", fmt.Errorf("prefix %q must start with /", prefix)
	}
	if strings.Contains(prefix, "//") {
		return "", fmt.Errorf("prefix %q contains an empty segment", prefix)
	}
	if trimmed := strings.TrimRight(prefix, "/"); trimmed != "" {
		return trimmed, nil
	}
	return "/", nil
}

func validateTarget(target *url.URL) error {
	if target == nil {
		return errors.New("target is required")
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return fmt.Errorf("target %q must use http or https", target.String())
	}
	if target.Host == "" {
		return fmt.Errorf("target %q has no host", target.String())
	}
	return nil
}
