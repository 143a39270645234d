// Package builds assembles the render-ready description of one build: the
// coalesced node tree with absolute wall-clock interval times, display
// strings and color ids. This is the JSON shape the chart's in-page
// script consumes.
package builds

import (
	"fmt"
	"sort"
	"time"

	"github.com/buildflame/buildflame/internal/nodes"
)

// ColorMapper assigns the color id for one bar of the chart.
type ColorMapper interface {
	ColorID(nodeName string, mode nodes.Mode) int
}

// Interval is one chart bar: an absolute time span with its mode, a
// human-readable range for the tooltip, and a color id resolved against
// the chart's palette.
type Interval struct {
	StartTimeMs float64    `json:"startTimeMs"`
	EndTimeMs   float64    `json:"endTimeMs"`
	TimeRange   string     `json:"timeRangeRelativeToBuildStart"`
	Mode        nodes.Mode `json:"mode"`
	ColorID     int        `json:"colorId"`
}

// Node is one chart row with its nested rows.
type Node struct {
	Name      string     `json:"name"`
	Children  []*Node    `json:"children"`
	Intervals []Interval `json:"intervals"`
}

// Data is everything needed to graph the nodes of a single build.
type Data struct {
	JobName          string            `json:"jobName"`
	BuildID          string            `json:"buildId"`
	Title            string            `json:"title"`
	Parameters       map[string]string `json:"parameters"` // not used by the chart; kept for debugging
	BuildStartTimeMs int64             `json:"buildStartTimeMs"`
	BuildEndTimeMs   float64           `json:"buildEndTimeMs"`
	NodeRoot         *Node             `json:"nodeRoot"`
}

// New converts a normalized forest into chart data. startTimeMs is the
// build's wall-clock start; titleParam names the build parameter whose
// value titles the build (a missing parameter falls back to "Build").
// Unnamed nodes display as "<job:buildID>", or "<job>" when the build
// has no number, as with a page loaded from disk.
func New(job, buildID string, startTimeMs int64, params map[string]string,
	titleParam string, f *nodes.Forest, colors ColorMapper) *Data {

	title := "Build"
	if v, ok := params[titleParam]; ok && v != "" {
		title = v
	}

	d := &Data{
		JobName:          job,
		BuildID:          buildID,
		Title:            title,
		Parameters:       params,
		BuildStartTimeMs: startTimeMs,
		BuildEndTimeMs:   float64(startTimeMs) + f.EndTimeMs(f.RootIndex()),
		NodeRoot:         convertNode(f, f.RootIndex(), prettyName(job, buildID), startTimeMs, colors),
	}
	return d
}

func prettyName(job, buildID string) string {
	if buildID == "" {
		return fmt.Sprintf("<%s>", job)
	}
	return fmt.Sprintf("<%s:%s>", job, buildID)
}

func convertNode(f *nodes.Forest, idx int, fallbackName string, startTimeMs int64, colors ColorMapper) *Node {
	src := f.At(idx)
	name := src.Name
	if name == "" {
		name = fallbackName
	}

	out := &Node{
		Name:     name,
		Children: []*Node{},
	}
	for _, iv := range src.Intervals {
		out.Intervals = append(out.Intervals, Interval{
			StartTimeMs: float64(startTimeMs) + iv.StartMs,
			EndTimeMs:   float64(startTimeMs) + iv.EndMs,
			TimeRange:   timeRange(startTimeMs, iv.StartMs, iv.EndMs),
			Mode:        iv.Mode,
			ColorID:     colors.ColorID(name, iv.Mode),
		})
	}
	for _, c := range src.Children {
		out.Children = append(out.Children, convertNode(f, c, fallbackName, startTimeMs, colors))
	}
	return out
}

// timeRange renders an interval for tooltips, in local time:
// "2024/03/01:12:00:00 - 12:05:30 (330.00s)".
func timeRange(buildStartMs int64, startMs, endMs float64) string {
	start := time.UnixMilli(buildStartMs + int64(startMs))
	end := time.UnixMilli(buildStartMs + int64(endMs))
	return fmt.Sprintf("%s - %s (%.2fs)",
		start.Format("2006/01/02:15:04:05"),
		end.Format("15:04:05"),
		(endMs-startMs)/1000.0)
}

// SortByStart orders builds by wall-clock start so a multi-build chart
// reads top to bottom in the order things happened.
func SortByStart(ds []*Data) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].BuildStartTimeMs < ds[j].BuildStartTimeMs
	})
}
