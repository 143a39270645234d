// Package records extracts raw pipeline-step records from a Jenkins
// flowGraphTable ("Pipeline Steps") page.
//
// A record is one row of the step listing: an integer id, the row's
// indentation level, and its display text. Everything else about a step
// (flags, names, durations, tree shape) is derived downstream by the
// steps package; this package only knows the page format.
package records

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Record is one row of the step-listing document. Indent encodes nesting
// depth and is used only to infer tree shape; Text is the source of all
// derived flags and timing.
type Record struct {
	ID     int
	Indent int
	Text   string
}

// rowPattern matches one step row of the flowGraphTable page. The page
// encodes nesting depth in the cell's padding-left multiplier and the step
// id in the anchor tooltip.
var rowPattern = regexp.MustCompile(
	`<td style="padding-left: calc.var.--table-padding. \* (\d+).">` +
		`\s*<a tooltip="ID: (\d+)" [^>]*>` +
		`\s*([^<]*)` +
		`\s*</a>` +
		`\s*</td>`)

// Extract returns the step records of a flowGraphTable page in document
// order. A page with no step rows yields an empty slice.
func Extract(page string) []Record {
	matches := rowPattern.FindAllStringSubmatch(page, -1)
	recs := make([]Record, 0, len(matches))
	for _, m := range matches {
		indent, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		recs = append(recs, Record{
			ID:     id,
			Indent: indent,
			Text:   html.UnescapeString(strings.TrimSpace(m[3])),
		})
	}
	return recs
}
