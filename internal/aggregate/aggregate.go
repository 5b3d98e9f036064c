// Package aggregate merges worker payloads into a research output and
// renders the investment dossier.
package aggregate

import (
	"sort"
	"time"

	"github.com/sells-group/property-research/internal/comps"
	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/underwriting"
)

// MaxComps caps each ranked comparable list.
const MaxComps = 10

// Input is everything the aggregator reads for one job.
type Input struct {
	JobID     string
	Subject   model.ResearchSubject
	Strategy  model.Strategy
	RehabTier model.RehabTier
	Runs      []model.WorkerRun
	Critical  []string
	Portfolio []model.PortfolioProperty
	Now       time.Time
}

// merged holds the typed payloads of successful runs.
type merged struct {
	facts         *model.ParcelFacts
	tax           *model.TaxRecord
	primary       *model.Valuation
	secondary     *model.Valuation
	sales         []model.CompRecord
	rentals       []model.CompRecord
	trend         *model.MarketTrend
	flood         *model.FloodRisk
	permits       *model.PermitHistory
	liens         *model.LienReport
	demographics  *model.Demographics
	schools       *model.SchoolReport
	environmental *model.EnvironmentalReport
	seismic       *model.SeismicRisk
	wetlands      *model.WetlandsReport
	historic      *model.HistoricStatus
	walkability   *model.Walkability
	noise         *model.NoiseReport
	rates         *model.MortgageRates
	rent          *model.RentEstimate
}

// SortRuns returns a copy of runs ordered by worker name.
func SortRuns(runs []model.WorkerRun) []model.WorkerRun {
	out := make([]model.WorkerRun, len(runs))
	copy(out, runs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Worker < out[j].Worker })
	return out
}

func merge(runs []model.WorkerRun) merged {
	var m merged
	for _, r := range runs {
		if r.Status != model.WorkerSucceeded || r.Payload == nil {
			continue
		}
		switch p := r.Payload.(type) {
		case *model.ParcelFacts:
			m.facts = p
		case *model.TaxRecord:
			m.tax = p
		case *model.Valuation:
			if p.Primary && m.primary == nil {
				m.primary = p
			} else if m.secondary == nil {
				m.secondary = p
			}
		case *model.CompSet:
			if p.Type == model.CompKindRentals {
				m.rentals = append(m.rentals, p.Comps...)
			} else {
				m.sales = append(m.sales, p.Comps...)
			}
		case *model.MarketTrend:
			m.trend = p
		case *model.FloodRisk:
			m.flood = p
		case *model.PermitHistory:
			m.permits = p
		case *model.LienReport:
			m.liens = p
		case *model.Demographics:
			m.demographics = p
		case *model.SchoolReport:
			m.schools = p
		case *model.EnvironmentalReport:
			m.environmental = p
		case *model.SeismicRisk:
			m.seismic = p
		case *model.WetlandsReport:
			m.wetlands = p
		case *model.HistoricStatus:
			m.historic = p
		case *model.Walkability:
			m.walkability = p
		case *model.NoiseReport:
			m.noise = p
		case *model.MortgageRates:
			m.rates = p
		case *model.RentEstimate:
			m.rent = p
		}
	}
	// A lone non-primary valuation serves as primary.
	if m.primary == nil && m.secondary != nil {
		m.primary, m.secondary = m.secondary, nil
	}
	return m
}

// Aggregate builds the research output for a job. Runs may arrive in any
// order; the result depends only on their content.
func Aggregate(in Input) *model.ResearchOutput {
	runs := SortRuns(in.Runs)
	m := merge(runs)

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := &model.ResearchOutput{
		JobID:       in.JobID,
		Subject:     in.Subject,
		Strategy:    in.Strategy,
		RehabTier:   in.RehabTier,
		Profile:     profile(m),
		WorkerRuns:  runs,
		GeneratedAt: now.UTC(),
	}

	subject := subjectFeatures(m)
	out.SalesComps = comps.Top(comps.Rank(subject, salesCandidates(m, in)), MaxComps)
	rentSubject := subject
	rentSubject.Price = 0
	if m.rent != nil {
		rentSubject.Price = m.rent.Rent
	}
	out.RentalComps = comps.Top(comps.Rank(rentSubject, workerCandidates(m.rentals)), MaxComps)

	uw := underwriting.Input{
		Facts:        m.facts,
		SalesComps:   out.SalesComps,
		RentalComps:  out.RentalComps,
		Trend:        m.trend,
		Primary:      m.primary,
		Secondary:    m.secondary,
		RehabTier:    in.RehabTier,
		Strategy:     in.Strategy,
		RentFallback: m.rent,
	}
	if m.rates != nil {
		uw.MortgageRate = m.rates.ThirtyYearFixed
	}
	out.Underwriting = underwriting.Compute(uw)

	out.Risk = risk(m, runs, in.Critical, out.Underwriting.LowConfidence)
	out.Neighborhood = neighborhood(m, in.Subject)
	out.Dossier = RenderDossier(out)
	return out
}

func profile(m merged) *model.PropertyProfile {
	if m.facts == nil && m.tax == nil {
		return nil
	}
	p := &model.PropertyProfile{}
	if f := m.facts; f != nil {
		p.APN = f.APN
		p.PropertyType = f.PropertyType
		p.Beds = f.Beds
		p.Baths = f.Baths
		p.Sqft = f.Sqft
		p.LotSqft = f.LotSqft
		p.YearBuilt = f.YearBuilt
		p.OwnerNames = f.OwnerNames
	}
	if t := m.tax; t != nil {
		p.AssessedValue = t.AssessedValue
		p.AnnualTax = t.AnnualTax
		if len(p.OwnerNames) == 0 {
			p.OwnerNames = t.OwnerNames
		}
	}
	if m.primary != nil {
		p.EstimatedValue = m.primary.Estimate
	}
	return p
}

func subjectFeatures(m merged) comps.Features {
	var f comps.Features
	if m.facts != nil {
		f.Beds = m.facts.Beds
		f.Baths = m.facts.Baths
		f.Sqft = float64(m.facts.Sqft)
	}
	if m.primary != nil {
		f.Price = m.primary.Estimate
	}
	return f
}

func workerCandidates(recs []model.CompRecord) []comps.Candidate {
	out := make([]comps.Candidate, 0, len(recs))
	for _, r := range recs {
		out = append(out, comps.Candidate{CompRecord: r, Source: model.CompSourceWorker})
	}
	return out
}

// salesCandidates draws from worker comps, valuation sale history and the
// caller's portfolio.
func salesCandidates(m merged, in Input) []comps.Candidate {
	out := workerCandidates(m.sales)
	for _, v := range []*model.Valuation{m.primary, m.secondary} {
		if v == nil {
			continue
		}
		for _, s := range v.SaleHistory {
			out = append(out, comps.Candidate{
				CompRecord: model.CompRecord{
					Address: s.Address,
					Price:   s.Price,
					Beds:    s.Beds,
					Baths:   s.Baths,
					Sqft:    s.Sqft,
					Date:    s.Date,
				},
				Source: model.CompSourceHistory,
			})
		}
	}
	for _, p := range in.Portfolio {
		if p.SubjectID == in.Subject.ID || p.Value <= 0 {
			continue
		}
		out = append(out, comps.Candidate{
			CompRecord: model.CompRecord{
				Address: p.Address,
				Price:   p.Value,
				Beds:    p.Beds,
				Baths:   p.Baths,
				Sqft:    p.Sqft,
			},
			Source: model.CompSourcePortfolio,
		})
	}
	return out
}
