// Package steps rebuilds a build's execution tree from the flat,
// indentation-encoded list of step records.
//
// Each record becomes exactly one Step. Tree shape is inferred from
// record order and indentation alone. The step listing carries durations
// but no timestamps, so start times are dead-reckoned: a step starts when
// its earlier siblings have finished, except under parallel steps (all
// branches start together) and worker-allocation steps (the lone child is
// aligned to the allocation's end).
package steps

import (
	"errors"

	"github.com/buildflame/buildflame/internal/records"
)

// ErrNoSteps reports an input with no step records. Callers treat it as a
// per-build data problem, not a pipeline bug.
var ErrNoSteps = errors.New("no steps found")

// Kind classifies a step by the structural or timing role its text
// declares. Exactly one kind applies per step.
type Kind int

const (
	KindPlain    Kind = iota
	KindBranch        // opens a named branch of a parallel group
	KindSleep         // sleeping on purpose
	KindWaiting       // waiting on a condition or a human prompt
	KindNewWorker     // allocates an executor on a worker machine
	KindNewStage      // opens a stage; the child carries the name
	KindParallel      // runs its children concurrently
)

// Step is one pipeline action with its inferred tree position and timing.
// Steps live in a Tree arena and refer to each other by index.
type Step struct {
	ID     int
	Indent int
	Text   string
	Kind   Kind

	// Name is the logical node this step belongs to. It is inherited from
	// the parent except where the step opens a branch or directly follows
	// a stage start. Named is false on the root chain before any stage or
	// branch is entered.
	Name  string
	Named bool

	ElapsedMs float64
	StartMs   float64

	Parent   int // arena index, -1 for the root
	Children []int
}

// Tree is the arena of steps for one build, in record order. Index 0 is
// the root.
type Tree struct {
	steps []Step
}

// Len returns the number of steps.
func (t *Tree) Len() int { return len(t.steps) }

// At returns the step at arena index i.
func (t *Tree) At(i int) *Step { return &t.steps[i] }

// RootIndex returns the arena index of the root step.
func (t *Tree) RootIndex() int { return 0 }

// Root returns the root step: the first record of the listing.
func (t *Tree) Root() *Step { return &t.steps[0] }

// HasNewName reports whether step i opens a logical node of its own: it
// is the root, or its name differs from its parent's.
func (t *Tree) HasNewName(i int) bool {
	s := &t.steps[i]
	if s.Parent < 0 {
		return true
	}
	p := &t.steps[s.Parent]
	return s.Named != p.Named || s.Name != p.Name
}

// Build links the flat record list into a step tree. It returns
// ErrNoSteps when the input is empty; the first record is otherwise
// always the root.
func Build(recs []records.Record, m Markers) (*Tree, error) {
	if len(recs) == 0 {
		return nil, ErrNoSteps
	}
	t := &Tree{steps: make([]Step, 0, len(recs))}
	for _, r := range recs {
		t.add(r, m)
	}
	t.fixBranchTimes()
	return t, nil
}

// add appends the step for one record, resolving its parent, kind, name
// and dead-reckoned start. Records arrive in document order, so only
// earlier siblings exist when the start is computed, which is exactly the
// set whose durations precede this step.
func (t *Tree) add(r records.Record, m Markers) {
	idx := len(t.steps)
	s := Step{
		ID:        r.ID,
		Indent:    r.Indent,
		Text:      r.Text,
		Kind:      m.classify(r.Text),
		ElapsedMs: m.elapsedMs(r.Text),
		Parent:    t.findParent(r.Indent),
	}
	s.Named, s.Name = t.resolveName(&s, m)
	if s.Parent >= 0 {
		t.steps[s.Parent].Children = append(t.steps[s.Parent].Children, idx)
	}
	t.steps = append(t.steps, s)
	t.steps[idx].StartMs = t.startTime(idx)
}

// findParent returns the index of the most recent step whose indentation
// is smaller than indent, or -1 when there is none.
func (t *Tree) findParent(indent int) int {
	for i := len(t.steps) - 1; i >= 0; i-- {
		if t.steps[i].Indent < indent {
			return i
		}
	}
	return -1
}

// resolveName decides the logical node a step belongs to. Branch steps
// name themselves from their own text; a step directly under a stage
// start extracts the stage name from its text; everything else inherits
// from the parent. The root chain stays unnamed.
func (t *Tree) resolveName(s *Step, m Markers) (bool, string) {
	if s.Kind == KindBranch {
		if g := m.BranchName.FindStringSubmatch(s.Text); g != nil {
			return true, g[1]
		}
	}
	if s.Parent >= 0 && t.steps[s.Parent].Kind == KindNewStage && m.StageName != nil {
		if g := m.StageName.FindStringSubmatch(s.Text); g != nil {
			return true, g[1]
		}
	}
	if s.Parent >= 0 {
		p := &t.steps[s.Parent]
		return p.Named, p.Name
	}
	return false, ""
}

// startTime dead-reckons when step idx began. Children of a parallel step
// all start with it; the lone child of a worker allocation ends together
// with the allocation, so its start is the allocation's end minus its own
// duration; otherwise a step starts after its earlier siblings' combined
// duration.
func (t *Tree) startTime(idx int) float64 {
	s := &t.steps[idx]
	if s.Parent < 0 {
		return 0
	}
	p := &t.steps[s.Parent]
	switch p.Kind {
	case KindParallel:
		return p.StartMs
	case KindNewWorker:
		return p.StartMs + p.ElapsedMs - s.ElapsedMs
	}
	start := p.StartMs
	for _, c := range p.Children {
		if c != idx {
			start += t.steps[c].ElapsedMs
		}
	}
	return start
}

// fixBranchTimes rewrites each branch step's elapsed time as the sum of
// its children's. The listing reports a branch's own duration relative to
// the whole parallel group, which overstates branches that start late;
// the children's durations are reliable.
func (t *Tree) fixBranchTimes() {
	for i := range t.steps {
		if t.steps[i].Kind != KindBranch {
			continue
		}
		var sum float64
		for _, c := range t.steps[i].Children {
			sum += t.steps[c].ElapsedMs
		}
		t.steps[i].ElapsedMs = sum
	}
}
