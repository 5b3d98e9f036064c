// Package export writes research output to an Excel workbook.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/property-research/internal/model"
)

// Sheet names, in workbook order.
const (
	SheetSummary     = "Summary"
	SheetSalesComps  = "Sales Comps"
	SheetRentalComps = "Rental Comps"
	SheetFlags       = "Flags"
	SheetWorkers     = "Workers"
)

var compHeader = []string{"Address", "Price", "Beds", "Baths", "Sqft", "Distance (mi)", "Source", "Score", "Confidence"}

// Workbook builds a workbook for a completed job's output.
func Workbook(out *model.ResearchOutput) (*xlsx.File, error) {
	if out == nil {
		return nil, eris.New("export: nil output")
	}
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	writeSummary(summary, out)

	for _, s := range []struct {
		name  string
		comps []model.ScoredComp
	}{
		{SheetSalesComps, out.SalesComps},
		{SheetRentalComps, out.RentalComps},
	} {
		sheet, err := f.AddSheet(s.name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: add %s sheet", s.name)
		}
		writeComps(sheet, s.comps)
	}

	flags, err := f.AddSheet(SheetFlags)
	if err != nil {
		return nil, eris.Wrap(err, "export: add flags sheet")
	}
	addStrings(flags.AddRow(), "Kind", "Detail")
	for _, fl := range out.Risk.ComplianceFlags {
		addStrings(flags.AddRow(), "compliance", fl)
	}
	for _, w := range out.Risk.Warnings {
		addStrings(flags.AddRow(), "warning", w)
	}

	workers, err := f.AddSheet(SheetWorkers)
	if err != nil {
		return nil, eris.Wrap(err, "export: add workers sheet")
	}
	addStrings(workers.AddRow(), "Worker", "Category", "Status", "Duration (ms)", "Cached", "Error")
	for _, r := range out.WorkerRuns {
		row := workers.AddRow()
		addStrings(row, r.Worker, string(r.Category), string(r.Status))
		row.AddCell().SetInt64(r.DurationMS)
		row.AddCell().SetBool(r.Cached)
		row.AddCell().SetString(r.Error)
	}

	return f, nil
}

// Write encodes the workbook for out to w.
func Write(w io.Writer, out *model.ResearchOutput) error {
	f, err := Workbook(out)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// Save writes the workbook for out to path.
func Save(path string, out *model.ResearchOutput) error {
	f, err := Workbook(out)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func writeSummary(sheet *xlsx.Sheet, out *model.ResearchOutput) {
	addStrings(sheet.AddRow(), "Field", "Value")
	text := func(k, v string) { addStrings(sheet.AddRow(), k, v) }
	num := func(k string, v float64) {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetFloat(v)
	}

	text("Job ID", out.JobID)
	text("Address", out.Subject.NormalizedAddress)
	text("Strategy", string(out.Strategy))
	text("Rehab Tier", string(out.RehabTier))
	if p := out.Profile; p != nil {
		text("APN", p.APN)
		num("Beds", p.Beds)
		num("Baths", p.Baths)
		num("Sqft", float64(p.Sqft))
		num("Year Built", float64(p.YearBuilt))
		num("Assessed Value", p.AssessedValue)
		num("Annual Tax", p.AnnualTax)
		text("Owners", strings.Join(p.OwnerNames, "; "))
	}

	u := out.Underwriting
	num("ARV Low", u.ARV.Low)
	num("ARV", u.ARV.Base)
	num("ARV High", u.ARV.High)
	text("ARV Source", u.ARVSource)
	num("Rent", u.Rent.Base)
	num("Rehab Low", u.Rehab.Low)
	num("Rehab High", u.Rehab.High)
	num("Max Allowable Offer", u.MaxAllowableOffer)
	num("Recommended Offer", u.RecommendedOffer)
	if u.RentalYieldBucket != "" {
		num("Rental Yield", u.RentalYield)
		text("Yield Bucket", string(u.RentalYieldBucket))
	}
	num("Risk Score", out.Risk.Score)
	num("Data Confidence", out.Risk.DataConfidence)
	text("Generated At", out.GeneratedAt.UTC().Format("2006-01-02 15:04:05Z"))
}

func writeComps(sheet *xlsx.Sheet, comps []model.ScoredComp) {
	addStrings(sheet.AddRow(), compHeader...)
	for _, c := range comps {
		row := sheet.AddRow()
		row.AddCell().SetString(c.Address)
		row.AddCell().SetFloat(c.Price)
		row.AddCell().SetFloat(c.Beds)
		row.AddCell().SetFloat(c.Baths)
		row.AddCell().SetInt(c.Sqft)
		row.AddCell().SetFloat(c.DistanceMiles)
		row.AddCell().SetString(string(c.Source))
		row.AddCell().SetFloat(c.Score)
		row.AddCell().SetFloat(c.Confidence)
	}
}

func addStrings(row *xlsx.Row, vals ...string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}
