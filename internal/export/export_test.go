package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/property-research/internal/model"
)

func sampleOutput() *model.ResearchOutput {
	return &model.ResearchOutput{
		JobID:     "job-1",
		Subject:   model.ResearchSubject{NormalizedAddress: "123 MAIN ST"},
		Strategy:  model.StrategyRental,
		RehabTier: model.RehabMedium,
		Profile:   &model.PropertyProfile{APN: "0123", Beds: 3, Baths: 2, Sqft: 1800, OwnerNames: []string{"JANE DOE"}},
		Underwriting: model.Underwriting{
			ARV:               model.Range{Low: 427500, Base: 450000, High: 472500},
			RecommendedOffer:  134000,
			RentalYield:       0.2,
			RentalYieldBucket: model.YieldExcellent,
			ARVSource:         "comps",
		},
		SalesComps: []model.ScoredComp{
			{CompRecord: model.CompRecord{Address: "125 MAIN ST", Price: 455000, Beds: 3, Baths: 2, Sqft: 1820}, Source: model.CompSourceWorker, Score: 0.97, Confidence: 0.87},
			{CompRecord: model.CompRecord{Address: "7 OAK AVE", Price: 430000, Beds: 3, Baths: 1, Sqft: 1700}, Source: model.CompSourcePortfolio, Score: 0.8, Confidence: 0.4},
		},
		Risk: model.RiskBlock{
			Score:           0.3,
			DataConfidence:  0.83,
			ComplianceFlags: []string{"property in flood zone AE"},
			Warnings:        []string{"tax records unavailable"},
		},
		WorkerRuns: []model.WorkerRun{
			{Worker: "avm", Category: model.CategoryValuation, Status: model.WorkerSucceeded, DurationMS: 120},
			{Worker: "tax", Category: model.CategoryTax, Status: model.WorkerFailed, Error: "boom"},
		},
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func rows(sheet *xlsx.Sheet) [][]string {
	out := make([][]string, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		cells := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			cells[i] = c.String()
		}
		out = append(out, cells)
	}
	return out
}

func TestWorkbook_Sheets(t *testing.T) {
	f, err := Workbook(sampleOutput())
	require.NoError(t, err)

	names := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{SheetSummary, SheetSalesComps, SheetRentalComps, SheetFlags, SheetWorkers}, names)

	sales := rows(f.Sheet[SheetSalesComps])
	require.Len(t, sales, 3)
	assert.Equal(t, compHeader, sales[0])
	assert.Equal(t, "125 MAIN ST", sales[1][0])
	assert.Equal(t, "worker", sales[1][6])
	assert.Equal(t, "portfolio", sales[2][6])

	assert.Len(t, f.Sheet[SheetRentalComps].Rows, 1, "header only")

	flags := rows(f.Sheet[SheetFlags])
	assert.Equal(t, [][]string{
		{"Kind", "Detail"},
		{"compliance", "property in flood zone AE"},
		{"warning", "tax records unavailable"},
	}, flags)

	workers := rows(f.Sheet[SheetWorkers])
	require.Len(t, workers, 3)
	assert.Equal(t, "tax", workers[2][0])
	assert.Equal(t, "failed", workers[2][2])
	assert.Equal(t, "boom", workers[2][5])
}

func TestWorkbook_Summary(t *testing.T) {
	f, err := Workbook(sampleOutput())
	require.NoError(t, err)

	fields := make(map[string]*xlsx.Cell)
	for _, r := range f.Sheet[SheetSummary].Rows[1:] {
		fields[r.Cells[0].String()] = r.Cells[1]
	}
	assert.Equal(t, "123 MAIN ST", fields["Address"].String())
	assert.Equal(t, "JANE DOE", fields["Owners"].String())
	assert.Equal(t, "excellent", fields["Yield Bucket"].String())

	arv, err := fields["ARV"].Float()
	require.NoError(t, err)
	assert.InDelta(t, 450000, arv, 0.01)
	offer, err := fields["Recommended Offer"].Float()
	require.NoError(t, err)
	assert.InDelta(t, 134000, offer, 0.01)
}

func TestWorkbook_NoProfileNoYield(t *testing.T) {
	out := sampleOutput()
	out.Profile = nil
	out.Underwriting.RentalYieldBucket = ""

	f, err := Workbook(out)
	require.NoError(t, err)
	for _, r := range f.Sheet[SheetSummary].Rows {
		assert.NotEqual(t, "APN", r.Cells[0].String())
		assert.NotEqual(t, "Yield Bucket", r.Cells[0].String())
	}
}

func TestWorkbook_Nil(t *testing.T) {
	_, err := Workbook(nil)
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleOutput()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Contains(t, f.Sheet, SheetSalesComps)
	assert.Len(t, f.Sheet[SheetSalesComps].Rows, 3)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dossier.xlsx")
	require.NoError(t, Save(path, sampleOutput()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 5)

	assert.Error(t, Save(filepath.Join(t.TempDir(), "missing", "x.xlsx"), sampleOutput()))
}
