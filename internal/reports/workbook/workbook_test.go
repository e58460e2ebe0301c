package workbook

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"safetyreports/internal/reports"
	"safetyreports/internal/stats"
	"safetyreports/internal/types"
)

func sampleInput() reports.Input {
	subs := []types.Submission{
		{
			ID: "A", Location: "Depot A", SubmittedBy: "jo",
			SubmittedAt: time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC),
			Payload: map[string]any{
				"checklist":     map[string]any{"brakes": "Fail", "lights": "Pass"},
				"equipmentId":   "FL-1",
				"safeToOperate": "No",
			},
		},
		{
			ID: "B", Location: "Depot A", SubmittedBy: "sam",
			SubmittedAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
			Payload: map[string]any{
				"checklist":     map[string]any{"brakes": "Pass", "lights": "Pass", "horn": "N/A"},
				"equipmentId":   "FL-2",
				"safeToOperate": "Yes",
			},
		},
		{
			ID: "C", Location: "Depot B", SubmittedBy: "lee",
			SubmittedAt: time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC),
			Payload: map[string]any{
				"checklist":   map[string]any{"brakes": "Fail", "lights": "Fail"},
				"equipmentId": "FL-1",
			},
		},
	}
	chicago, _ := time.LoadLocation("America/Chicago")
	return reports.Input{
		Submissions: subs,
		Summary:     stats.Compute(subs),
		Range: reports.DateRange{
			Start: time.Date(2026, 2, 28, 0, 0, 0, 0, chicago),
			End:   time.Date(2026, 3, 7, 0, 0, 0, 0, chicago),
		},
		TZ:          chicago,
		GeneratedAt: time.Date(2026, 3, 7, 13, 0, 0, 0, time.UTC),
	}
}

func openAttachment(t *testing.T, att types.Attachment) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(att.Content))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRender_Sheets(t *testing.T) {
	att, err := New().Render(sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "Inspection_Report_2026-02-28_to_2026-03-07.xlsx", att.Filename)
	assert.Equal(t, mimeType, att.MimeType)

	f := openAttachment(t, att)
	assert.Equal(t, []string{SheetSummary, SheetItems, SheetSubmissions}, f.GetSheetList())
}

func TestRender_SummarySheet(t *testing.T) {
	att, err := New().Render(sampleInput())
	require.NoError(t, err)
	f := openAttachment(t, att)

	rows, err := f.GetRows(SheetSummary)
	require.NoError(t, err)

	values := map[string]string{}
	for _, r := range rows {
		if len(r) == 2 {
			values[r[0]] = r[1]
		}
	}
	assert.Equal(t, "3", values["Total Inspections"])
	assert.Equal(t, "2", values["Inspections With Failures"])
	assert.Equal(t, "3", values["Total Failed Items"])
	assert.Equal(t, "33%", values["Pass Rate"])
	assert.Equal(t, "1", values["Safe to Operate: Yes"])
	assert.Equal(t, "All locations", values["Location"])
	assert.Equal(t, "2026-03-07 07:00 CST", values["Generated At"])
}

func TestRender_FailuresByItemSheet(t *testing.T) {
	att, err := New().Render(sampleInput())
	require.NoError(t, err)
	f := openAttachment(t, att)

	rows, err := f.GetRows(SheetItems)
	require.NoError(t, err)
	require.Len(t, rows, len(stats.InspectionItems)+1)

	assert.Equal(t, []string{"Item", "Failures", "% of Failures"}, rows[0])
	assert.Equal(t, []string{"Brakes", "2", "67%"}, rows[1])
	assert.Equal(t, []string{"Lights", "1", "33%"}, rows[2])
	assert.Equal(t, []string{"Tires", "0", "0%"}, rows[3])
}

func TestRender_AllSubmissionsSheet(t *testing.T) {
	att, err := New().Render(sampleInput())
	require.NoError(t, err)
	f := openAttachment(t, att)

	rows, err := f.GetRows(SheetSubmissions)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// most recent first, timestamps in the report timezone
	assert.Equal(t, "2026-03-03 03:00", rows[1][0])
	assert.Equal(t, "sam", rows[1][2])
	assert.Equal(t, "Brakes, Lights", rows[1][6])
	assert.Equal(t, "Horn", rows[1][7])

	assert.Equal(t, "lee", rows[3][2])
	assert.Equal(t, "Brakes, Lights", rows[3][5])
}

func TestRender_Deterministic(t *testing.T) {
	in := sampleInput()
	a, err := New().Render(in)
	require.NoError(t, err)
	b, err := New().Render(in)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a.Content, b.Content))
}

func TestRender_EmptyWindow(t *testing.T) {
	in := sampleInput()
	in.Submissions = nil
	in.Summary = stats.Compute(nil)

	att, err := New().Render(in)
	require.NoError(t, err)
	f := openAttachment(t, att)

	rows, err := f.GetRows(SheetSubmissions)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	v, err := f.GetCellValue(SheetSummary, "B8")
	require.NoError(t, err)
	assert.Equal(t, "0%", v)
}
