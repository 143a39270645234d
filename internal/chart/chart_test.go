package chart

import (
	"bytes"
	"strings"
	"testing"

	"github.com/buildflame/buildflame/internal/builds"
	"github.com/buildflame/buildflame/internal/config"
	"github.com/buildflame/buildflame/internal/nodes"
)

func TestBlend(t *testing.T) {
	tests := []struct {
		color string
		alpha float64
		want  string
	}{
		{"#1f77b4", 1.0, "#1f77b4"},
		{"#1f77b4", 0.0, "#ffffff"},
		{"#1f77b4", 0.6, "#78add2"},
		{"#1f77b4", 0.3, "#bbd6e8"},
		{"#ff0000", 0.6, "#ff6666"},
		{"#000000", 0.3, "#b2b2b2"},
	}
	for _, tt := range tests {
		got, err := blend(tt.color, tt.alpha)
		if err != nil {
			t.Errorf("blend(%q, %g): %v", tt.color, tt.alpha, err)
			continue
		}
		if got != tt.want {
			t.Errorf("blend(%q, %g) = %q, want %q", tt.color, tt.alpha, got, tt.want)
		}
	}

	for _, bad := range []string{"1f77b4", "#12345", "#1234567", "red"} {
		if _, err := blend(bad, 1.0); err == nil {
			t.Errorf("blend(%q) succeeded, want error", bad)
		}
	}
}

func TestMapperFirstMatchWins(t *testing.T) {
	m, err := NewMapper([]config.ColorRule{
		{Pattern: "build.*", Color: "#ff0000"},
		{Pattern: ".*", Color: "#0000ff"},
	})
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	ids := m.ColorToID()
	if ids["#000000"] != 0 {
		t.Errorf("black id = %d, want 0", ids["#000000"])
	}

	// "build-frontend" matches both patterns; the first rule decides.
	if got, want := m.ColorID("build-frontend", nodes.Running), ids["#ff0000"]; got != want {
		t.Errorf("build running id = %d, want %d", got, want)
	}
	if got, want := m.ColorID("deploy", nodes.Running), ids["#0000ff"]; got != want {
		t.Errorf("deploy running id = %d, want %d", got, want)
	}
	if got, want := m.ColorID("deploy", nodes.Sleeping), ids["#6666ff"]; got != want {
		t.Errorf("deploy sleeping id = %d, want %d", got, want)
	}
	if got, want := m.ColorID("build-x", nodes.NotRunning), ids["#ffffff"]; got != want {
		t.Errorf("not-running id = %d, want %d", got, want)
	}
}

func TestMapperAnchorsPatterns(t *testing.T) {
	m, err := NewMapper([]config.ColorRule{{Pattern: "build", Color: "#ff0000"}})
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	if got := m.ColorID("rebuild", nodes.Running); got != 0 {
		t.Errorf("pattern matched mid-name, id = %d, want 0", got)
	}
	if got := m.ColorID("build-frontend", nodes.Running); got == 0 {
		t.Error("pattern did not match at start of name")
	}
}

func TestMapperNoRules(t *testing.T) {
	m, err := NewMapper(nil)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	if got := m.ColorID("anything", nodes.Running); got != 0 {
		t.Errorf("id = %d, want 0", got)
	}
	ids := m.ColorToID()
	if len(ids) != 1 || ids["#000000"] != 0 {
		t.Errorf("palette = %v, want only black", ids)
	}
}

func TestMapperRejectsBadPattern(t *testing.T) {
	if _, err := NewMapper([]config.ColorRule{{Pattern: "(", Color: "#ff0000"}}); err == nil {
		t.Error("NewMapper accepted an invalid pattern")
	}
}

func TestDefaultRules(t *testing.T) {
	m, err := NewMapper(DefaultRules())
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	if got := m.ColorID("whatever", nodes.Running); got == 0 {
		t.Error("default rules left a running bar black")
	}
}

func TestColorToIDReturnsCopy(t *testing.T) {
	m, err := NewMapper(DefaultRules())
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	ids := m.ColorToID()
	ids["#123456"] = 99
	if _, ok := m.ColorToID()["#123456"]; ok {
		t.Error("mutating the returned palette changed the mapper")
	}
}

func testBuild(id string, startMs int64, title string) *builds.Data {
	return &builds.Data{
		JobName:          "deploy",
		BuildID:          id,
		Title:            title,
		BuildStartTimeMs: startMs,
		BuildEndTimeMs:   float64(startMs) + 60_000,
		NodeRoot: &builds.Node{
			Name:     "<deploy:" + id + ">",
			Children: []*builds.Node{},
			Intervals: []builds.Interval{
				{
					StartTimeMs: float64(startMs),
					EndTimeMs:   float64(startMs) + 60_000,
					TimeRange:   "range",
					Mode:        nodes.Running,
					ColorID:     1,
				},
			},
		},
	}
}

func TestRender(t *testing.T) {
	m, err := NewMapper(DefaultRules())
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	var buf bytes.Buffer
	ds := []*builds.Data{
		testBuild("2", 2_000_000, "B"),
		testBuild("1", 1_000_000, "A"),
	}
	if err := Render(&buf, ds, "my task", m); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "<title>my task</title>") {
		t.Error("output is missing the page title")
	}
	if !strings.Contains(out, "var TASK = {") {
		t.Error("output is missing the embedded data")
	}
	if !strings.Contains(out, `"taskStartTimeMs":1000000`) {
		t.Error("task start is not the earliest build start")
	}
	if !strings.Contains(out, `"taskEndTimeMs":2060000`) {
		t.Error("task end is not the latest build end")
	}

	first := strings.Index(out, `"buildId":"1"`)
	second := strings.Index(out, `"buildId":"2"`)
	if first < 0 || second < 0 || first > second {
		t.Errorf("builds are not ordered by start time (indexes %d, %d)", first, second)
	}
}

func TestRenderDerivesTitle(t *testing.T) {
	m, err := NewMapper(DefaultRules())
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	var buf bytes.Buffer
	ds := []*builds.Data{
		testBuild("2", 2_000_000, "B"),
		testBuild("1", 1_000_000, "A"),
		testBuild("3", 3_000_000, "A"),
	}
	if err := Render(&buf, ds, "", m); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), `"title":"A / B"`) {
		t.Error("derived title is not the sorted, deduplicated join")
	}
}

func TestRenderNoBuilds(t *testing.T) {
	m, err := NewMapper(nil)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	if err := Render(&bytes.Buffer{}, nil, "t", m); err == nil {
		t.Error("Render accepted zero builds")
	}
}
