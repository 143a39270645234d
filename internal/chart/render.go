package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/buildflame/buildflame/internal/builds"
)

// task is the top-level JSON blob embedded in the page: every build plus
// the palette and the overall time window the bars are scaled against.
type task struct {
	Builds          []*builds.Data `json:"builds"`
	Title           string         `json:"title"`
	Subtitle        string         `json:"subtitle"`
	ColorToID       map[string]int `json:"colorToId"`
	TaskStartTimeMs int64          `json:"taskStartTimeMs"`
	TaskEndTimeMs   float64        `json:"taskEndTimeMs"`
}

var page = template.Must(template.New("chart").Parse(pageTemplate))

// Render writes a standalone HTML flamechart for ds. Builds are ordered
// by start time. An empty title is derived from the builds' own titles.
func Render(w io.Writer, ds []*builds.Data, title string, m *Mapper) error {
	if len(ds) == 0 {
		return errors.New("no builds to render")
	}
	builds.SortByStart(ds)

	if title == "" {
		title = joinTitles(ds)
	}
	start := ds[0].BuildStartTimeMs
	end := ds[0].BuildEndTimeMs
	for _, d := range ds {
		if d.BuildStartTimeMs < start {
			start = d.BuildStartTimeMs
		}
		if d.BuildEndTimeMs > end {
			end = d.BuildEndTimeMs
		}
	}

	t := task{
		Builds:          ds,
		Title:           title,
		Subtitle:        time.UnixMilli(start).Format("2006/01/02 15:04:05"),
		ColorToID:       m.ColorToID(),
		TaskStartTimeMs: start,
		TaskEndTimeMs:   end,
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode chart data: %w", err)
	}

	return page.Execute(w, map[string]any{
		"Title": title,
		"CSS":   template.CSS(chartCSS),
		"JS":    template.JS(chartJS),
		"Data":  template.JS(raw),
	})
}

func joinTitles(ds []*builds.Data) string {
	seen := map[string]bool{}
	var titles []string
	for _, d := range ds {
		if !seen[d.Title] {
			seen[d.Title] = true
			titles = append(titles, d.Title)
		}
	}
	sort.Strings(titles)
	return strings.Join(titles, " / ")
}
