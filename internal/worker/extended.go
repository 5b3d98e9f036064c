package worker

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
)

// Rent estimates without a band get ±10%.
func finishRentEstimate(r *model.RentEstimate) error {
	if r.Rent <= 0 {
		return eris.Wrap(ErrNoData, "no rent estimate")
	}
	if r.Low <= 0 || r.Low > r.Rent {
		r.Low = r.Rent * 0.9
	}
	if r.High < r.Rent {
		r.High = r.Rent * 1.1
	}
	return nil
}

func finishSeismic(s *model.SeismicRisk) error {
	if s.HazardLevel != "" {
		return nil
	}
	switch g := s.PeakGroundG; {
	case g >= 0.4:
		s.HazardLevel = "high"
	case g >= 0.1:
		s.HazardLevel = "moderate"
	default:
		s.HazardLevel = "low"
	}
	return nil
}

func finishMortgageRates(m *model.MortgageRates) error {
	if m.ThirtyYearFixed <= 0 {
		return eris.Wrap(ErrNoData, "no 30-year rate")
	}
	return nil
}
