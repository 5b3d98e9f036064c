package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
)

// CriticalPenalty is subtracted from data confidence per failed critical
// worker.
const CriticalPenalty = 0.15

// unavailable names the warning emitted when a worker produced no data.
var unavailable = map[string]string{
	"parcel":         "parcel facts unavailable",
	"tax":            "tax records unavailable",
	"avm":            "primary valuation unavailable",
	"avm_secondary":  "secondary valuation unavailable",
	"comps_sales":    "comparable sales unavailable",
	"comps_rentals":  "comparable rentals unavailable",
	"market_trend":   "market trend unavailable",
	"flood":          "flood data unavailable",
	"permits":        "permit history unavailable",
	"liens":          "lien data unavailable",
	"demographics":   "demographics unavailable",
	"schools":        "school ratings unavailable",
	"mortgage_rates": "mortgage rates unavailable",
	"rent_estimate":  "rent estimate unavailable",
}

func unavailableWarning(worker string) string {
	if w, ok := unavailable[worker]; ok {
		return w
	}
	return strings.ReplaceAll(worker, "_", " ") + " data unavailable"
}

// DataConfidence is the succeeded share of dispatched workers less
// CriticalPenalty per critical worker that did not succeed, clamped to [0,1].
func DataConfidence(runs []model.WorkerRun, critical []string) float64 {
	if len(runs) == 0 {
		return 0
	}
	status := make(map[string]model.WorkerStatus, len(runs))
	succeeded := 0
	for _, r := range runs {
		status[r.Worker] = r.Status
		if r.Status == model.WorkerSucceeded {
			succeeded++
		}
	}
	failedCritical := 0
	for _, name := range critical {
		if st, ok := status[name]; ok && st != model.WorkerSucceeded {
			failedCritical++
		}
	}
	c := float64(succeeded)/float64(len(runs)) - CriticalPenalty*float64(failedCritical)
	return math.Min(1, math.Max(0, c))
}

// Sufficient returns nil when parcel facts and at least one valuation
// succeeded. Otherwise it returns ErrInsufficientData naming the critical
// workers that did not succeed.
func Sufficient(runs []model.WorkerRun, critical []string) error {
	var parcel, valuation bool
	status := make(map[string]model.WorkerStatus, len(runs))
	for _, r := range runs {
		status[r.Worker] = r.Status
		if r.Status != model.WorkerSucceeded {
			continue
		}
		switch r.Category {
		case model.CategoryParcel:
			parcel = true
		case model.CategoryValuation:
			valuation = true
		}
	}
	if parcel && valuation {
		return nil
	}

	var failed []string
	for _, name := range critical {
		if st, ok := status[name]; ok && st != model.WorkerSucceeded {
			failed = append(failed, fmt.Sprintf("%s (%s)", name, st))
		}
	}
	sort.Strings(failed)
	var missing []string
	if !parcel {
		missing = append(missing, "parcel facts")
	}
	if !valuation {
		missing = append(missing, "valuation")
	}
	msg := "missing " + strings.Join(missing, " and ")
	if len(failed) > 0 {
		msg += "; critical workers failed: " + strings.Join(failed, ", ")
	}
	return eris.Wrap(model.ErrInsufficientData, msg)
}

// flag is a compliance flag with its contribution to the risk score.
type flag struct {
	text   string
	weight float64
}

func complianceFlags(m merged) []flag {
	var flags []flag
	if m.flood != nil && m.flood.InsuranceRequired {
		flags = append(flags, flag{"property in flood zone " + m.flood.Zone, 0.25})
	}
	if m.liens != nil {
		if m.liens.Foreclosure {
			flags = append(flags, flag{"foreclosure activity", 0.20})
		}
		if m.liens.OpenLiens > 0 {
			flags = append(flags, flag{fmt.Sprintf("open liens (%d)", m.liens.OpenLiens), 0.15})
		}
	}
	if m.tax != nil && m.tax.Delinquent {
		flags = append(flags, flag{"tax delinquent", 0.10})
	}
	if m.permits != nil && m.permits.Open > 0 {
		flags = append(flags, flag{fmt.Sprintf("open permits (%d)", m.permits.Open), 0.05})
	}
	if e := m.environmental; e != nil && (e.SuperfundSites > 0 || e.BrownfieldSites > 0) {
		flags = append(flags, flag{"environmental hazards nearby", 0.15})
	}
	if m.seismic != nil && m.seismic.HazardLevel == "high" {
		flags = append(flags, flag{"high seismic hazard", 0.10})
	}
	if m.wetlands != nil && m.wetlands.Present {
		flags = append(flags, flag{"wetlands present", 0.10})
	}
	if h := m.historic; h != nil && (h.InDistrict || h.Listed) {
		flags = append(flags, flag{"historic district", 0.05})
	}
	return flags
}

func risk(m merged, runs []model.WorkerRun, critical []string, lowConfidenceARV bool) model.RiskBlock {
	rb := model.RiskBlock{
		DataConfidence:  DataConfidence(runs, critical),
		ComplianceFlags: []string{},
		Warnings:        []string{},
	}
	if m.flood != nil {
		rb.FloodZone = m.flood.Zone
	}

	var score float64
	for _, f := range complianceFlags(m) {
		rb.ComplianceFlags = append(rb.ComplianceFlags, f.text)
		score += f.weight
	}
	score += (1 - rb.DataConfidence) * 0.2
	rb.Score = math.Round(math.Min(1, score)*100) / 100

	for _, r := range runs {
		if r.Status != model.WorkerSucceeded {
			rb.Warnings = append(rb.Warnings, unavailableWarning(r.Worker))
		}
	}
	if lowConfidenceARV {
		rb.Warnings = append(rb.Warnings, "ARV estimated without comparable sales")
	}
	rb.LowConfidence = lowConfidenceARV || rb.DataConfidence < 0.5
	return rb
}
