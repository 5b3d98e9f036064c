package worker

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
)

type parcelWorker struct{ base }

type parcelResponse struct {
	APN          string `json:"apn"`
	PropertyType string `json:"property_type"`
	Building     struct {
		Beds       float64 `json:"beds"`
		Baths      float64 `json:"baths"`
		LivingSqft int     `json:"living_sqft"`
		YearBuilt  int     `json:"year_built"`
	} `json:"building"`
	Lot struct {
		Sqft int `json:"sqft"`
	} `json:"lot"`
	Owners []struct {
		Name string `json:"name"`
	} `json:"owners"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

func (w *parcelWorker) Run(ctx context.Context, req Request) (model.Payload, error) {
	var resp parcelResponse
	if err := w.fetch(ctx, req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.APN == "" && resp.Building.LivingSqft == 0 && resp.Building.Beds == 0 {
		return nil, eris.Wrapf(ErrNoData, "%s: empty parcel record", w.name)
	}
	facts := &model.ParcelFacts{
		APN:          resp.APN,
		PropertyType: resp.PropertyType,
		Beds:         resp.Building.Beds,
		Baths:        resp.Building.Baths,
		Sqft:         resp.Building.LivingSqft,
		LotSqft:      resp.Lot.Sqft,
		YearBuilt:    resp.Building.YearBuilt,
		Latitude:     resp.Location.Lat,
		Longitude:    resp.Location.Lng,
	}
	for _, o := range resp.Owners {
		if n := strings.TrimSpace(o.Name); n != "" {
			facts.OwnerNames = append(facts.OwnerNames, n)
		}
	}
	return facts, nil
}

type taxWorker struct{ base }

type taxResponse struct {
	TaxYear  int `json:"tax_year"`
	Assessed struct {
		Total float64 `json:"total"`
	} `json:"assessed"`
	Tax struct {
		Amount float64 `json:"amount"`
	} `json:"tax"`
	Owners     []string `json:"owners"`
	Exemptions []string `json:"exemptions"`
	Delinquent bool     `json:"delinquent"`
}

func (w *taxWorker) Run(ctx context.Context, req Request) (model.Payload, error) {
	var resp taxResponse
	if err := w.fetch(ctx, req, nil, &resp); err != nil {
		return nil, err
	}
	return &model.TaxRecord{
		TaxYear:       resp.TaxYear,
		AssessedValue: resp.Assessed.Total,
		AnnualTax:     resp.Tax.Amount,
		OwnerNames:    resp.Owners,
		Exemptions:    resp.Exemptions,
		Delinquent:    resp.Delinquent,
	}, nil
}

type valuationWorker struct {
	base
	primary bool
}

type valuationResponse struct {
	Estimate float64 `json:"estimate"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Sales    []struct {
		Address string    `json:"address"`
		Amount  float64   `json:"amount"`
		Date    time.Time `json:"date"`
		Beds    float64   `json:"beds"`
		Baths   float64   `json:"baths"`
		Sqft    int       `json:"sqft"`
	} `json:"sales"`
}

func (w *valuationWorker) Run(ctx context.Context, req Request) (model.Payload, error) {
	var resp valuationResponse
	if err := w.fetch(ctx, req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Estimate <= 0 {
		return nil, eris.Wrapf(ErrNoData, "%s: no estimate", w.name)
	}
	v := &model.Valuation{
		Source:   w.client.Provider(),
		Primary:  w.primary,
		Estimate: resp.Estimate,
		Low:      resp.Low,
		High:     resp.High,
	}
	if v.Low <= 0 || v.Low > v.Estimate {
		v.Low = v.Estimate
	}
	if v.High < v.Estimate {
		v.High = v.Estimate
	}
	for _, s := range resp.Sales {
		if s.Amount <= 0 {
			continue
		}
		v.SaleHistory = append(v.SaleHistory, model.SaleRecord{
			Address: s.Address,
			Price:   s.Amount,
			Date:    s.Date,
			Beds:    s.Beds,
			Baths:   s.Baths,
			Sqft:    s.Sqft,
		})
	}
	return v, nil
}

type compsWorker struct {
	base
	kind model.CompKind
}

type compsResponse struct {
	Comps []model.CompRecord `json:"comps"`
}

func (w *compsWorker) Run(ctx context.Context, req Request) (model.Payload, error) {
	var resp compsResponse
	extra := url.Values{"type": {string(w.kind)}}
	if err := w.fetch(ctx, req, extra, &resp); err != nil {
		return nil, err
	}
	set := &model.CompSet{Type: w.kind}
	for _, c := range resp.Comps {
		if c.Price <= 0 || strings.EqualFold(c.Address, req.Subject.NormalizedAddress) {
			continue
		}
		set.Comps = append(set.Comps, c)
	}
	if len(set.Comps) == 0 {
		return nil, eris.Wrapf(ErrNoData, "%s: no comparables", w.name)
	}
	return set, nil
}

// trendDirection classifies a year-over-year change in percent.
func trendDirection(yoy float64) model.TrendDirection {
	switch {
	case yoy > 1:
		return model.TrendUp
	case yoy < -1:
		return model.TrendDown
	default:
		return model.TrendFlat
	}
}

func finishTrend(t *model.MarketTrend) error {
	if t.Direction == "" {
		t.Direction = trendDirection(t.YoYChangePct)
	}
	return nil
}

// Special flood hazard areas start with A or V.
func finishFlood(f *model.FloodRisk) error {
	f.Zone = strings.ToUpper(strings.TrimSpace(f.Zone))
	if strings.HasPrefix(f.Zone, "A") || strings.HasPrefix(f.Zone, "V") {
		f.InsuranceRequired = true
	}
	return nil
}

var closedPermitStatuses = map[string]bool{
	"final":     true,
	"finaled":   true,
	"closed":    true,
	"completed": true,
	"expired":   true,
	"void":      true,
}

func finishPermits(p *model.PermitHistory) error {
	p.Open = 0
	for _, pm := range p.Permits {
		if !closedPermitStatuses[strings.ToLower(strings.TrimSpace(pm.Status))] {
			p.Open++
		}
	}
	return nil
}

func finishSchools(s *model.SchoolReport) error {
	if len(s.Schools) == 0 {
		return eris.Wrap(ErrNoData, "no schools")
	}
	var sum float64
	for _, sc := range s.Schools {
		sum += sc.Rating
	}
	s.AvgRating = sum / float64(len(s.Schools))
	return nil
}
