package steps

import (
	"regexp"
	"strconv"
	"strings"
)

// Markers is the marker vocabulary used to classify step text and to pull
// names and durations out of it. The vocabulary is fixed per source-page
// schema: build one Markers value and pass it to Build rather than
// reaching for package-level state.
type Markers struct {
	// Substring markers. An empty marker never matches.
	WaitUntil  string
	Prompt     string
	Sleep      string
	NewWorker  string
	Parallel   string
	StageStart string

	// BranchName extracts a parallel-branch name from the branch step's
	// own text; its presence is also what classifies the step as a branch.
	BranchName *regexp.Regexp
	// StageName extracts a stage name from the text of a step whose
	// parent is a stage-start step.
	StageName *regexp.Regexp
	// Elapsed parses the duration suffix; groups are minutes, seconds and
	// milliseconds, each optional.
	Elapsed *regexp.Regexp
}

// DefaultMarkers returns the vocabulary of the Jenkins flowGraphTable
// page.
func DefaultMarkers() Markers {
	return Markers{
		WaitUntil:  "waitUntil - ",
		Prompt:     "input - ",
		Sleep:      "sleep - ",
		NewWorker:  "node - ",
		Parallel:   "parallel - ",
		StageStart: "Stage : Start",
		BranchName: regexp.MustCompile(`\(Branch: ([^)]*)\)`),
		StageName:  regexp.MustCompile(`stage block \(([^)]*)\)`),
		Elapsed:    regexp.MustCompile(`(?:([\d.]+) min )?(?:([\d.]+) sec )?(?:([\d.]+) ms )?in (block|self)`),
	}
}

// classify assigns the step's kind from its text. When several markers
// match, the more specific timing kinds win over the structural ones.
func (m Markers) classify(text string) Kind {
	switch {
	case m.BranchName != nil && m.BranchName.MatchString(text):
		return KindBranch
	case contains(text, m.Sleep):
		return KindSleep
	case contains(text, m.WaitUntil), contains(text, m.Prompt):
		return KindWaiting
	case contains(text, m.NewWorker):
		return KindNewWorker
	case contains(text, m.StageStart):
		return KindNewStage
	case contains(text, m.Parallel):
		return KindParallel
	}
	return KindPlain
}

func contains(text, marker string) bool {
	return marker != "" && strings.Contains(text, marker)
}

// elapsedMs parses the duration suffix of a step's text, e.g.
// "1 min 2.5 sec in block" or "450 ms in self". Text without a
// recognizable duration counts as zero elapsed time rather than an error:
// some structural rows carry none.
func (m Markers) elapsedMs(text string) float64 {
	if m.Elapsed == nil {
		return 0
	}
	g := m.Elapsed.FindStringSubmatch(text)
	if g == nil {
		return 0
	}
	return parseFloat(g[1])*60000 + parseFloat(g[2])*1000 + parseFloat(g[3])
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
