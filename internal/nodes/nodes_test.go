package nodes

import (
	"errors"
	"reflect"
	"testing"

	"github.com/buildflame/buildflame/internal/records"
	"github.com/buildflame/buildflame/internal/steps"
)

func mustTree(t *testing.T, recs []records.Record) *steps.Tree {
	t.Helper()
	tree, err := steps.Build(recs, steps.DefaultMarkers())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tree
}

func TestCoalesce(t *testing.T) {
	tree := mustTree(t, []records.Record{
		{ID: 2, Indent: 1, Text: "Start of Pipeline - (20 min in block)"},
		{ID: 3, Indent: 2, Text: "node - Allocate node : Start - (1 min in block)"},
		{ID: 4, Indent: 3, Text: "Allocate node : Body : Start - (50 sec in block)"},
		{ID: 5, Indent: 4, Text: "Stage : Start - (45 sec in block)"},
		{ID: 6, Indent: 5, Text: "stage block (build) - (45 sec in block)"},
		{ID: 7, Indent: 6, Text: "sleep - Sleep - (10 sec in self)"},
	})
	f, err := Coalesce(tree)
	if err != nil {
		t.Fatalf("Coalesce: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("forest has %d nodes, want 2", f.Len())
	}

	root := f.Root()
	if root.Named {
		t.Errorf("root node is named %q, want unnamed", root.Name)
	}
	// The worker allocation runs from 0 to 60000 and its body step is
	// dead-reckoned to start at 10000, so the root spends [0, 10000)
	// awaiting an executor.
	wantRoot := []Interval{
		{StartMs: 0, EndMs: 1200000, Mode: Running},
		{StartMs: 0, EndMs: 10000, Mode: AwaitingExecutor},
	}
	if !reflect.DeepEqual(root.Intervals, wantRoot) {
		t.Errorf("root intervals = %+v, want %+v", root.Intervals, wantRoot)
	}

	bi, ok := f.Find("build")
	if !ok {
		t.Fatal(`no node named "build"`)
	}
	build := f.At(bi)
	wantBuild := []Interval{
		{StartMs: 10000, EndMs: 55000, Mode: Running},
		{StartMs: 10000, EndMs: 20000, Mode: Sleeping},
	}
	if !reflect.DeepEqual(build.Intervals, wantBuild) {
		t.Errorf("build intervals = %+v, want %+v", build.Intervals, wantBuild)
	}
	if len(root.Children) != 1 || root.Children[0] != bi {
		t.Errorf("root children = %v, want [%d]", root.Children, bi)
	}
}

func TestCoalesceThenNormalize(t *testing.T) {
	tree := mustTree(t, []records.Record{
		{ID: 2, Indent: 1, Text: "Start of Pipeline - (20 min in block)"},
		{ID: 3, Indent: 2, Text: "node - Allocate node : Start - (1 min in block)"},
		{ID: 4, Indent: 3, Text: "Allocate node : Body : Start - (50 sec in block)"},
		{ID: 5, Indent: 4, Text: "Stage : Start - (45 sec in block)"},
		{ID: 6, Indent: 5, Text: "stage block (build) - (45 sec in block)"},
		{ID: 7, Indent: 6, Text: "sleep - Sleep - (10 sec in self)"},
	})
	f, err := Coalesce(tree)
	if err != nil {
		t.Fatalf("Coalesce: %v", err)
	}
	if err := f.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	wantRoot := []Interval{
		{StartMs: 0, EndMs: 10000, Mode: AwaitingExecutor},
		{StartMs: 10000, EndMs: 1200000, Mode: Running},
	}
	if got := f.Root().Intervals; !reflect.DeepEqual(got, wantRoot) {
		t.Errorf("root timeline = %+v, want %+v", got, wantRoot)
	}

	bi, _ := f.Find("build")
	wantBuild := []Interval{
		{StartMs: 0, EndMs: 10000, Mode: NotRunning},
		{StartMs: 10000, EndMs: 20000, Mode: Sleeping},
		{StartMs: 20000, EndMs: 55000, Mode: Running},
	}
	if got := f.At(bi).Intervals; !reflect.DeepEqual(got, wantBuild) {
		t.Errorf("build timeline = %+v, want %+v", got, wantBuild)
	}

	if got, want := f.EndTimeMs(f.RootIndex()), 1200000.0; got != want {
		t.Errorf("root end = %v, want %v", got, want)
	}
	if got, want := f.EndTimeMs(bi), 55000.0; got != want {
		t.Errorf("build end = %v, want %v", got, want)
	}
}

func TestCoalesceWorkerStepError(t *testing.T) {
	tree := mustTree(t, []records.Record{
		{ID: 2, Indent: 1, Text: "Start of Pipeline - (10 sec in block)"},
		{ID: 3, Indent: 2, Text: "node - Allocate node : Start - (5 sec in block)"},
		{ID: 4, Indent: 3, Text: "first child - (1 sec in self)"},
		{ID: 5, Indent: 3, Text: "second child - (1 sec in self)"},
	})
	_, err := Coalesce(tree)
	var wse *WorkerStepError
	if !errors.As(err, &wse) {
		t.Fatalf("Coalesce error = %v, want *WorkerStepError", err)
	}
	if wse.StepID != 3 || wse.Children != 2 {
		t.Errorf("WorkerStepError = %+v, want step 3 with 2 children", wse)
	}
}

func TestChildNaturalOrder(t *testing.T) {
	tree := mustTree(t, []records.Record{
		{ID: 2, Indent: 1, Text: "Start of Pipeline - (10 min in block)"},
		{ID: 3, Indent: 2, Text: "parallel - Execute in parallel : Start - (9 min in block)"},
		{ID: 4, Indent: 3, Text: "parallel block (Branch: e2e-node-10) - (9 min in block)"},
		{ID: 5, Indent: 3, Text: "parallel block (Branch: e2e-node-2) - (8 min in block)"},
		{ID: 6, Indent: 3, Text: "parallel block (Branch: e2e-node-1) - (7 min in block)"},
	})
	f, err := Coalesce(tree)
	if err != nil {
		t.Fatalf("Coalesce: %v", err)
	}
	var got []string
	for _, c := range f.Root().Children {
		got = append(got, f.At(c).Name)
	}
	want := []string{"e2e-node-1", "e2e-node-2", "e2e-node-10"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("child order = %v, want %v", got, want)
	}
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"e2e-node-2", "e2e-node-10", true},
		{"e2e-node-10", "e2e-node-2", false},
		{"e2e-node-2", "e2e-node-2", false},
		{"a-b", "a-b-c", true},
		{"a-b-c", "a-b", false},
		{"2-x", "10-x", true},
		{"10-build", "build", true}, // numeric segments order before words
		{"alpha", "beta", true},
		{"node-007", "node-8", true},
	}
	for _, tt := range tests {
		if got := naturalLess(tt.a, tt.b); got != tt.want {
			t.Errorf("naturalLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalizeNestingSplit(t *testing.T) {
	got, err := normalize("test", []Interval{
		{StartMs: 0, EndMs: 10000, Mode: Running},
		{StartMs: 2000, EndMs: 3000, Mode: Sleeping},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []Interval{
		{StartMs: 0, EndMs: 2000, Mode: Running},
		{StartMs: 2000, EndMs: 3000, Mode: Sleeping},
		{StartMs: 3000, EndMs: 10000, Mode: Running},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalize = %+v, want %+v", got, want)
	}
}

func TestNormalizeGapFill(t *testing.T) {
	got, err := normalize("test", []Interval{
		{StartMs: 5000, EndMs: 8000, Mode: Running},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []Interval{
		{StartMs: 0, EndMs: 5000, Mode: NotRunning},
		{StartMs: 5000, EndMs: 8000, Mode: Running},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalize = %+v, want %+v", got, want)
	}
}

func TestNormalizeOverlapRejected(t *testing.T) {
	_, err := normalize("deploy", []Interval{
		{StartMs: 0, EndMs: 10000, Mode: Running},
		{StartMs: 4000, EndMs: 20000, Mode: Running},
	})
	var oe *OverlapError
	if !errors.As(err, &oe) {
		t.Fatalf("normalize error = %v, want *OverlapError", err)
	}
	if oe.Node != "deploy" {
		t.Errorf("OverlapError node = %q, want %q", oe.Node, "deploy")
	}
}

func TestNormalizeToleratesNearMiss(t *testing.T) {
	// Ends within a second of the next start count as disjoint, not as a
	// partial overlap; the later interval simply truncates the earlier.
	got, err := normalize("test", []Interval{
		{StartMs: 0, EndMs: 10000, Mode: Running},
		{StartMs: 9500, EndMs: 20000, Mode: Running},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []Interval{
		{StartMs: 0, EndMs: 20000, Mode: Running},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalize = %+v, want %+v", got, want)
	}
}

func TestNormalizeMergesAdjacentSameMode(t *testing.T) {
	got, err := normalize("test", []Interval{
		{StartMs: 0, EndMs: 1000, Mode: Running},
		{StartMs: 1000, EndMs: 2000, Mode: Running},
		{StartMs: 2000, EndMs: 3000, Mode: Sleeping},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []Interval{
		{StartMs: 0, EndMs: 2000, Mode: Running},
		{StartMs: 2000, EndMs: 3000, Mode: Sleeping},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalize = %+v, want %+v", got, want)
	}
}

func TestNormalizeFullCoverage(t *testing.T) {
	got, err := normalize("test", []Interval{
		{StartMs: 1000, EndMs: 50000, Mode: Running},
		{StartMs: 2000, EndMs: 4000, Mode: Sleeping},
		{StartMs: 10000, EndMs: 30000, Mode: Waiting},
		{StartMs: 60000, EndMs: 70000, Mode: Running},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got[0].StartMs != 0 {
		t.Errorf("timeline starts at %v, want 0", got[0].StartMs)
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartMs != got[i-1].EndMs {
			t.Errorf("gap between %+v and %+v", got[i-1], got[i])
		}
	}
	for _, iv := range got {
		if iv.StartMs >= iv.EndMs {
			t.Errorf("empty or inverted interval %+v", iv)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := normalize("test", []Interval{
		{StartMs: 1000, EndMs: 50000, Mode: Running},
		{StartMs: 2000, EndMs: 4000, Mode: Sleeping},
		{StartMs: 60000, EndMs: 70000, Mode: Running},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	twice, err := normalize("test", once)
	if err != nil {
		t.Fatalf("normalize again: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalize not idempotent:\nonce  %+v\ntwice %+v", once, twice)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	got, err := normalize("test", nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("normalize(nil) = %+v, want empty", got)
	}
}

func TestModeText(t *testing.T) {
	for _, m := range []Mode{Running, Sleeping, Waiting, AwaitingExecutor, NotRunning} {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", m, err)
		}
		var back Mode
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != m {
			t.Errorf("mode %v round-tripped to %v", m, back)
		}
	}
	var m Mode
	if err := m.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText accepted an unknown mode")
	}
}
