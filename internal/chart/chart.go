// Package chart turns build data into a self-contained HTML flamechart.
//
// Colors work in two steps. Each configured rule pairs a name pattern
// with a base color; the base is washed out per mode (running bars fully
// saturated, sleeping and waiting lighter, awaiting-executor lighter
// still, not-running white). Every distinct shade gets a small integer
// id so the embedded JSON stays compact, with id 0 reserved for black,
// the fallback when no rule matches.
package chart

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/buildflame/buildflame/internal/config"
	"github.com/buildflame/buildflame/internal/nodes"
)

var allModes = [...]nodes.Mode{
	nodes.Running,
	nodes.Sleeping,
	nodes.Waiting,
	nodes.AwaitingExecutor,
	nodes.NotRunning,
}

func saturation(m nodes.Mode) float64 {
	switch m {
	case nodes.Running:
		return 1.0
	case nodes.Sleeping, nodes.Waiting:
		return 0.6
	case nodes.AwaitingExecutor:
		return 0.3
	default:
		return 0.0
	}
}

type rule struct {
	re   *regexp.Regexp
	mode nodes.Mode
	hex  string
}

// Mapper resolves (node name, mode) pairs to palette ids. Rules are
// checked in configuration order and the first match wins; patterns
// match at the start of the name.
type Mapper struct {
	rules []rule
	ids   map[string]int
}

// NewMapper compiles the configured color rules. Base colors must be
// "#rrggbb".
func NewMapper(rules []config.ColorRule) (*Mapper, error) {
	m := &Mapper{}
	for _, r := range rules {
		re, err := regexp.Compile("^(?:" + r.Pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("color pattern %q: %w", r.Pattern, err)
		}
		for _, mode := range allModes {
			hex, err := blend(r.Color, saturation(mode))
			if err != nil {
				return nil, err
			}
			m.rules = append(m.rules, rule{re: re, mode: mode, hex: hex})
		}
	}

	seen := map[string]bool{}
	var shades []string
	for _, r := range m.rules {
		if !seen[r.hex] {
			seen[r.hex] = true
			shades = append(shades, r.hex)
		}
	}
	sort.Strings(shades)

	m.ids = map[string]int{}
	for i, c := range append([]string{"#000000"}, shades...) {
		m.ids[c] = i
	}
	return m, nil
}

// DefaultRules colors every node from a single blue base when the
// configuration defines no palette of its own.
func DefaultRules() []config.ColorRule {
	return []config.ColorRule{{Pattern: ".*", Color: "#1f77b4"}}
}

// ColorID returns the palette id for one bar, or 0 (black) when no rule
// matches the node name.
func (m *Mapper) ColorID(nodeName string, mode nodes.Mode) int {
	for _, r := range m.rules {
		if r.mode == mode && r.re.MatchString(nodeName) {
			return m.ids[r.hex]
		}
	}
	return 0
}

// ColorToID returns a copy of the full palette, mapping each shade to
// its id. The chart embeds this so the page can invert it into an
// id-indexed color table.
func (m *Mapper) ColorToID() map[string]int {
	out := make(map[string]int, len(m.ids))
	for c, id := range m.ids {
		out[c] = id
	}
	return out
}

// blend washes color toward white: alpha 1 keeps the base, alpha 0 is
// pure white.
func blend(color string, alpha float64) (string, error) {
	var r, g, b int
	if _, err := fmt.Sscanf(color, "#%02x%02x%02x", &r, &g, &b); err != nil || len(color) != 7 {
		return "", fmt.Errorf("color %q: want #rrggbb", color)
	}
	wash := func(c int) int { return int(float64(c)*alpha + 0xff*(1-alpha)) }
	return fmt.Sprintf("#%02x%02x%02x", wash(r), wash(g), wash(b)), nil
}
