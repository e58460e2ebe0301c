// Package reports holds what the document and workbook renderers share: the
// render input, the attachment naming convention and the Renderer contract.
package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"safetyreports/internal/stats"
	"safetyreports/internal/types"
)

// ReportName prefixes every generated attachment file name.
const ReportName = "Inspection_Report"

// Title is the heading used by both renderers.
const Title = "Vehicle Inspection Report"

const dateLayout = "2006-01-02"

// DateRange is an inclusive window of calendar dates. Only the date part of
// Start and End is meaningful.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String formats the range as "YYYY-MM-DD to YYYY-MM-DD".
func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + " to " + r.End.Format(dateLayout)
}

// Input is everything a renderer reads. Renderers never modify it.
type Input struct {
	Submissions    []types.Submission
	Summary        stats.Summary
	Range          DateRange
	LocationFilter *string
	// TZ formats submission timestamps. Nil means UTC.
	TZ *time.Location
	// GeneratedAt only appears in the labelled "Generated at" footer or row.
	GeneratedAt time.Time
}

// LocationLabel describes the location scope of the report.
func (in Input) LocationLabel() string {
	if in.LocationFilter == nil || *in.LocationFilter == "" {
		return "All locations"
	}
	return *in.LocationFilter
}

// Zone returns in.TZ or UTC.
func (in Input) Zone() *time.Location {
	if in.TZ == nil {
		return time.UTC
	}
	return in.TZ
}

// SortedSubmissions returns a most-recent-first copy of in.Submissions.
func (in Input) SortedSubmissions() []types.Submission {
	out := make([]types.Submission, len(in.Submissions))
	copy(out, in.Submissions)
	stats.SortMostRecentFirst(out)
	return out
}

// GeneratedAtLabel formats the footer text.
func (in Input) GeneratedAtLabel() string {
	return "Generated at " + in.GeneratedAt.In(in.Zone()).Format("2006-01-02 15:04 MST")
}

// FileName builds "<ReportName>_<start>_to_<end>.<ext>".
func FileName(r DateRange, ext string) string {
	return fmt.Sprintf("%s_%s_to_%s.%s", ReportName, r.Start.Format(dateLayout), r.End.Format(dateLayout), ext)
}

// Renderer turns an Input into one attachment.
type Renderer interface {
	Format() types.ReportFormat
	Render(in Input) (types.Attachment, error)
}

// ChecklistGroups splits a checklist into comma-joined labels of passed,
// failed and N/A items. Vocabulary items come first in vocabulary order,
// then unknown keys alphabetically.
func ChecklistGroups(checklist map[string]types.ChecklistResult) (passed, failed, na string) {
	var p, f, n []string
	for _, key := range orderedKeys(checklist) {
		label := stats.Label(key)
		switch checklist[key] {
		case types.ResultPass:
			p = append(p, label)
		case types.ResultFail:
			f = append(f, label)
		case types.ResultNA:
			n = append(n, label)
		}
	}
	return strings.Join(p, ", "), strings.Join(f, ", "), strings.Join(n, ", ")
}

func orderedKeys(checklist map[string]types.ChecklistResult) []string {
	keys := make([]string, 0, len(checklist))
	for _, it := range stats.InspectionItems {
		if _, ok := checklist[it.Key]; ok {
			keys = append(keys, it.Key)
		}
	}
	var extra []string
	for k := range checklist {
		if !stats.IsKnownItem(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}
