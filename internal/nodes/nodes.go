// Package nodes coalesces a step tree into named activity nodes and
// normalizes each node's intervals into a gap-free, non-overlapping
// timeline.
//
// A node aggregates every step that shares one logical identity (a stage
// or a parallel branch); the single unnamed root node stands for the
// whole build. Coalescing records raw, possibly nested intervals per
// node; Normalize then flattens them for rendering.
package nodes

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/buildflame/buildflame/internal/steps"
)

// Mode is the activity category of an interval.
type Mode int

const (
	Running Mode = iota
	Sleeping
	Waiting
	AwaitingExecutor
	NotRunning
)

var modeNames = [...]string{
	Running:          "RUNNING",
	Sleeping:         "Sleeping",
	Waiting:          "Waiting",
	AwaitingExecutor: "Awaiting executor",
	NotRunning:       "[not running]",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText serializes the mode with its display string, which is also
// the wire form used in build data files.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the display strings produced by MarshalText.
func (m *Mode) UnmarshalText(text []byte) error {
	s := string(text)
	for i, name := range modeNames {
		if s == name {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown interval mode %q", s)
}

// Interval is one span of a node's timeline. The end is exclusive;
// normalized intervals always satisfy StartMs < EndMs.
type Interval struct {
	StartMs float64
	EndMs   float64
	Mode    Mode
}

// Node aggregates the steps that share one logical identity. Children are
// deduplicated by name and sorted once coalescing is complete.
type Node struct {
	Name      string
	Named     bool
	Children  []int // arena indices
	Intervals []Interval
}

// Label returns the node's name for error and log messages.
func (n *Node) Label() string {
	if !n.Named {
		return "(root)"
	}
	return n.Name
}

type nameKey struct {
	named bool
	name  string
}

// Forest is the arena of coalesced nodes for one build. Index 0 is always
// the unnamed root node, since the root step opens it first.
type Forest struct {
	nodes  []Node
	byName map[nameKey]int
}

// Len returns the number of nodes.
func (f *Forest) Len() int { return len(f.nodes) }

// At returns the node at arena index i.
func (f *Forest) At(i int) *Node { return &f.nodes[i] }

// Root returns the unnamed root node.
func (f *Forest) Root() *Node { return &f.nodes[0] }

// RootIndex returns the arena index of the root node.
func (f *Forest) RootIndex() int { return 0 }

// Find returns the arena index of the named node, if present.
func (f *Forest) Find(name string) (int, bool) {
	i, ok := f.byName[nameKey{named: true, name: name}]
	return i, ok
}

// WorkerStepError reports a worker-allocation step that does not have
// exactly one child. The lone child is the worker-ready marker; without
// it the executor wait cannot be attributed.
type WorkerStepError struct {
	Node     string
	StepID   int
	Children int
}

func (e *WorkerStepError) Error() string {
	return fmt.Sprintf("node %s: worker-allocation step %d must have exactly one child, found %d",
		e.Node, e.StepID, e.Children)
}

// Coalesce walks the step tree depth-first and groups contiguous
// same-named steps into nodes, recording each node's raw intervals. The
// intervals may still nest; call Normalize before handing the forest to a
// renderer.
func Coalesce(t *steps.Tree) (*Forest, error) {
	f := &Forest{byName: make(map[nameKey]int)}
	if err := f.walk(t, t.RootIndex(), -1); err != nil {
		return nil, err
	}
	f.sortChildren()
	return f, nil
}

func (f *Forest) walk(t *steps.Tree, stepIdx, current int) error {
	s := t.At(stepIdx)
	if t.HasNewName(stepIdx) {
		ni := f.ensure(s.Named, s.Name)
		f.addInterval(ni, s.StartMs, s.StartMs+s.ElapsedMs, Running)
		if current >= 0 {
			f.link(current, ni)
		}
		current = ni
	} else {
		switch s.Kind {
		case steps.KindSleep:
			f.addInterval(current, s.StartMs, s.StartMs+s.ElapsedMs, Sleeping)
		case steps.KindWaiting:
			f.addInterval(current, s.StartMs, s.StartMs+s.ElapsedMs, Waiting)
		case steps.KindNewWorker:
			// The gap between the allocation step and its lone child is
			// time spent blocked on an executor.
			if len(s.Children) != 1 {
				return &WorkerStepError{
					Node:     f.nodes[current].Label(),
					StepID:   s.ID,
					Children: len(s.Children),
				}
			}
			ready := t.At(s.Children[0])
			f.addInterval(current, s.StartMs, ready.StartMs, AwaitingExecutor)
		}
	}
	for _, c := range s.Children {
		if err := f.walk(t, c, current); err != nil {
			return err
		}
	}
	return nil
}

// ensure returns the node for a name, creating it on first encounter.
// Re-encountering a name updates the existing node rather than creating a
// sibling.
func (f *Forest) ensure(named bool, name string) int {
	k := nameKey{named: named, name: name}
	if i, ok := f.byName[k]; ok {
		return i
	}
	f.nodes = append(f.nodes, Node{Name: name, Named: named})
	f.byName[k] = len(f.nodes) - 1
	return len(f.nodes) - 1
}

func (f *Forest) addInterval(ni int, start, end float64, mode Mode) {
	f.nodes[ni].Intervals = append(f.nodes[ni].Intervals, Interval{StartMs: start, EndMs: end, Mode: mode})
}

func (f *Forest) link(parent, child int) {
	for _, c := range f.nodes[parent].Children {
		if c == child {
			return
		}
	}
	f.nodes[parent].Children = append(f.nodes[parent].Children, child)
}

func (f *Forest) sortChildren() {
	for i := range f.nodes {
		kids := f.nodes[i].Children
		sort.SliceStable(kids, func(a, b int) bool {
			return f.less(kids[a], kids[b])
		})
	}
}

// less orders sibling nodes: unnamed nodes sort by their first interval's
// start and before named ones; named nodes sort naturally by name, so
// "node-2" precedes "node-10".
func (f *Forest) less(a, b int) bool {
	na, nb := &f.nodes[a], &f.nodes[b]
	if !na.Named || !nb.Named {
		if na.Named != nb.Named {
			return !na.Named
		}
		return na.firstStart() < nb.firstStart()
	}
	return naturalLess(na.Name, nb.Name)
}

func (n *Node) firstStart() float64 {
	if len(n.Intervals) == 0 {
		return 0
	}
	return n.Intervals[0].StartMs
}

// EndTimeMs returns the overall end of node i: the maximum interval end
// over the node itself and all of its descendants. Renderers use it to
// align timelines across nodes.
func (f *Forest) EndTimeMs(i int) float64 {
	end := 0.0
	for _, iv := range f.nodes[i].Intervals {
		if iv.EndMs > end {
			end = iv.EndMs
		}
	}
	for _, c := range f.nodes[i].Children {
		if ce := f.EndTimeMs(c); ce > end {
			end = ce
		}
	}
	return end
}

// naturalLess compares hyphen-separated names segment by segment, with
// purely numeric segments compared as integers. Numeric segments order
// before non-numeric ones; a name that is a prefix of another orders
// first.
func naturalLess(a, b string) bool {
	as, bs := strings.Split(a, "-"), strings.Split(b, "-")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aNum := numericSegment(as[i])
		bn, bNum := numericSegment(bs[i])
		switch {
		case aNum && bNum:
			if an != bn {
				return an < bn
			}
		case aNum:
			return true
		case bNum:
			return false
		default:
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
		}
	}
	return len(as) < len(bs)
}

func numericSegment(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
