package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/property-research/internal/model"
)

// RenderDossier renders a completed output as a plain-text dossier. The same
// output always renders the same text.
func RenderDossier(out *model.ResearchOutput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Investment Dossier: %s\n", out.Subject.NormalizedAddress)
	fmt.Fprintf(&b, "Job: %s\n", out.JobID)
	fmt.Fprintf(&b, "Strategy: %s | Rehab tier: %s\n", out.Strategy, out.RehabTier)
	fmt.Fprintf(&b, "Generated: %s\n\n", out.GeneratedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Property Overview\n")
	if p := out.Profile; p == nil {
		b.WriteString("Property facts unavailable.\n\n")
	} else {
		if p.PropertyType != "" {
			fmt.Fprintf(&b, "- Type: %s\n", p.PropertyType)
		}
		if p.APN != "" {
			fmt.Fprintf(&b, "- APN: %s\n", p.APN)
		}
		fmt.Fprintf(&b, "- Beds/Baths: %g / %g\n", p.Beds, p.Baths)
		fmt.Fprintf(&b, "- Living area: %s sqft\n", count(p.Sqft))
		if p.LotSqft > 0 {
			fmt.Fprintf(&b, "- Lot: %s sqft\n", count(p.LotSqft))
		}
		if p.YearBuilt > 0 {
			fmt.Fprintf(&b, "- Year built: %d\n", p.YearBuilt)
		}
		if len(p.OwnerNames) > 0 {
			fmt.Fprintf(&b, "- Owners: %s\n", strings.Join(p.OwnerNames, "; "))
		}
		if p.AssessedValue > 0 {
			fmt.Fprintf(&b, "- Assessed value: %s\n", money(p.AssessedValue))
		}
		if p.AnnualTax > 0 {
			fmt.Fprintf(&b, "- Annual tax: %s\n", money(p.AnnualTax))
		}
		if p.EstimatedValue > 0 {
			fmt.Fprintf(&b, "- Estimated value: %s\n", money(p.EstimatedValue))
		}
		b.WriteString("\n")
	}

	u := out.Underwriting
	b.WriteString("## Investment Analysis\n")
	fmt.Fprintf(&b, "- ARV: %s (range %s to %s, source %s)\n",
		money(u.ARV.Base), money(u.ARV.Low), money(u.ARV.High), u.ARVSource)
	fmt.Fprintf(&b, "- Rehab (%s at %s/sqft): %s (range %s to %s)\n",
		out.RehabTier, money(u.RehabRatePerSqft), money(u.Rehab.Base), money(u.Rehab.Low), money(u.Rehab.High))
	if u.Rent.Base > 0 {
		fmt.Fprintf(&b, "- Rent: %s/mo (range %s to %s)\n", money(u.Rent.Base), money(u.Rent.Low), money(u.Rent.High))
	} else {
		b.WriteString("- Rent: unavailable\n")
	}
	fmt.Fprintf(&b, "- Closing costs: %.0f%% of ARV, profit margin: %.0f%% of ARV\n",
		u.ClosingCostPct*100, u.ProfitMarginPct*100)
	if u.CashFlowCap > 0 {
		fmt.Fprintf(&b, "- Cash-flow cap: %s\n", money(u.CashFlowCap))
	}
	fmt.Fprintf(&b, "- Max allowable offer: %s\n", money(u.MaxAllowableOffer))
	fmt.Fprintf(&b, "- Recommended offer: %s\n", money(u.RecommendedOffer))
	if u.RentalYieldBucket != "" {
		fmt.Fprintf(&b, "- Rental yield: %.1f%% (%s)\n", u.RentalYield*100, u.RentalYieldBucket)
	}
	if u.LowConfidence {
		b.WriteString("- Low confidence: yes\n")
	}
	b.WriteString("\n")

	b.WriteString("## Comparables\n")
	writeComps(&b, "Sales", out.SalesComps, "")
	writeComps(&b, "Rentals", out.RentalComps, "/mo")

	b.WriteString("## Neighborhood\n")
	b.WriteString(out.Neighborhood.Narrative)
	b.WriteString("\n\n")

	r := out.Risk
	b.WriteString("## Flags\n")
	fmt.Fprintf(&b, "- Risk score: %.2f\n", r.Score)
	fmt.Fprintf(&b, "- Data confidence: %.0f%%\n", r.DataConfidence*100)
	if r.FloodZone != "" {
		fmt.Fprintf(&b, "- Flood zone: %s\n", r.FloodZone)
	}
	if len(r.ComplianceFlags) == 0 && len(r.Warnings) == 0 {
		b.WriteString("- No compliance flags or warnings.\n")
	}
	for _, f := range r.ComplianceFlags {
		fmt.Fprintf(&b, "- Compliance: %s\n", f)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "- Warning: %s\n", w)
	}
	b.WriteString("\n")

	b.WriteString("## Data Sources\n")
	for _, run := range out.WorkerRuns {
		fmt.Fprintf(&b, "- %s: %s (%dms)", run.Worker, run.Status, run.DurationMS)
		if run.Cached {
			b.WriteString(" [cached]")
		}
		b.WriteString("\n")
		if run.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", run.Error)
		}
	}

	return b.String()
}

func writeComps(b *strings.Builder, title string, list []model.ScoredComp, unit string) {
	fmt.Fprintf(b, "### %s\n", title)
	if len(list) == 0 {
		b.WriteString("None found.\n\n")
		return
	}
	for i, c := range list {
		fmt.Fprintf(b, "%d. %s: %s%s, %g bd / %g ba, %s sqft, score %.2f (%s)\n",
			i+1, c.Address, money(c.Price), unit, c.Beds, c.Baths, count(c.Sqft), c.Score, c.Source)
	}
	b.WriteString("\n")
}
