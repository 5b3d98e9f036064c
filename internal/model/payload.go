package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Category groups workers by the semantic slice of the output they feed.
type Category string

const (
	CategoryParcel       Category = "parcel"
	CategoryTax          Category = "tax"
	CategoryValuation    Category = "valuation"
	CategoryCompsSales   Category = "comps_sales"
	CategoryCompsRentals Category = "comps_rentals"
	CategoryMarket       Category = "market"
	CategoryRisk         Category = "risk"
	CategoryNeighborhood Category = "neighborhood"
	CategoryFinancing    Category = "financing"
	CategoryRent         Category = "rent"
)

// Payload is the structured partial result of a successful worker run.
// Concrete types are the variants below; the aggregator merges them with a
// type switch.
type Payload interface {
	Kind() PayloadKind
}

// PayloadKind tags a payload variant for persistence.
type PayloadKind string

const (
	KindParcelFacts   PayloadKind = "parcel_facts"
	KindTaxRecord     PayloadKind = "tax_record"
	KindValuation     PayloadKind = "valuation"
	KindCompSet       PayloadKind = "comp_set"
	KindMarketTrend   PayloadKind = "market_trend"
	KindFloodRisk     PayloadKind = "flood_risk"
	KindPermitHistory PayloadKind = "permit_history"
	KindLienReport    PayloadKind = "lien_report"
	KindDemographics  PayloadKind = "demographics"
	KindSchoolReport  PayloadKind = "school_report"
	KindEnvironmental PayloadKind = "environmental"
	KindSeismicRisk   PayloadKind = "seismic_risk"
	KindWetlands      PayloadKind = "wetlands"
	KindHistoric      PayloadKind = "historic"
	KindWalkability   PayloadKind = "walkability"
	KindNoise         PayloadKind = "noise"
	KindMortgageRates PayloadKind = "mortgage_rates"
	KindRentEstimate  PayloadKind = "rent_estimate"
)

// ParcelFacts are the physical facts of the subject parcel.
type ParcelFacts struct {
	APN          string   `json:"apn,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	Beds         float64  `json:"beds"`
	Baths        float64  `json:"baths"`
	Sqft         int      `json:"sqft"`
	LotSqft      int      `json:"lot_sqft,omitempty"`
	YearBuilt    int      `json:"year_built,omitempty"`
	OwnerNames   []string `json:"owner_names,omitempty"`
	Latitude     float64  `json:"latitude,omitempty"`
	Longitude    float64  `json:"longitude,omitempty"`
}

// TaxRecord is the county assessment and tax status.
type TaxRecord struct {
	TaxYear       int      `json:"tax_year"`
	AssessedValue float64  `json:"assessed_value"`
	AnnualTax     float64  `json:"annual_tax"`
	OwnerNames    []string `json:"owner_names,omitempty"`
	Exemptions    []string `json:"exemptions,omitempty"`
	Delinquent    bool     `json:"delinquent"`
}

// SaleRecord is a recorded transfer, either of the subject or a neighbor.
type SaleRecord struct {
	Address string    `json:"address"`
	Price   float64   `json:"price"`
	Date    time.Time `json:"date"`
	Beds    float64   `json:"beds,omitempty"`
	Baths   float64   `json:"baths,omitempty"`
	Sqft    int       `json:"sqft,omitempty"`
}

// Valuation is an automated valuation estimate. SaleHistory holds sale
// entries the provider surfaced alongside the estimate.
type Valuation struct {
	Source      string       `json:"source"`
	Primary     bool         `json:"primary"`
	Estimate    float64      `json:"estimate"`
	Low         float64      `json:"low"`
	High        float64      `json:"high"`
	SaleHistory []SaleRecord `json:"sale_history,omitempty"`
}

// CompKind distinguishes sale comparables from rental comparables.
type CompKind string

const (
	CompKindSales   CompKind = "sales"
	CompKindRentals CompKind = "rentals"
)

// CompRecord is a comparable property. Price is the sale price for sales
// comps and the monthly rent for rental comps.
type CompRecord struct {
	Address       string    `json:"address"`
	Price         float64   `json:"price"`
	Beds          float64   `json:"beds"`
	Baths         float64   `json:"baths"`
	Sqft          int       `json:"sqft"`
	DistanceMiles float64   `json:"distance_miles,omitempty"`
	Date          time.Time `json:"date,omitempty"`
}

// CompSet is a list of comparables gathered by a dedicated comps worker.
type CompSet struct {
	Type  CompKind     `json:"type"`
	Comps []CompRecord `json:"comps"`
}

// TrendDirection is the direction of local price movement.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendFlat TrendDirection = "flat"
	TrendDown TrendDirection = "down"
)

// MarketTrend describes local market momentum.
type MarketTrend struct {
	Direction       TrendDirection `json:"direction"`
	YoYChangePct    float64        `json:"yoy_change_pct"`
	MedianDOM       int            `json:"median_days_on_market"`
	MedianSalePrice float64        `json:"median_sale_price,omitempty"`
}

// FloodRisk is the FEMA flood zone designation.
type FloodRisk struct {
	Zone              string `json:"zone"`
	InsuranceRequired bool   `json:"insurance_required"`
}

// Permit is one building permit on file.
type Permit struct {
	Type   string    `json:"type"`
	Status string    `json:"status"`
	Value  float64   `json:"value,omitempty"`
	Issued time.Time `json:"issued,omitempty"`
}

// PermitHistory lists permits pulled for the parcel.
type PermitHistory struct {
	Permits []Permit `json:"permits"`
	Open    int      `json:"open"`
}

// LienReport summarizes recorded liens and foreclosure activity.
type LienReport struct {
	OpenLiens    int     `json:"open_liens"`
	TotalBalance float64 `json:"total_balance"`
	Foreclosure  bool    `json:"foreclosure"`
}

// Demographics are census-tract level neighborhood statistics.
type Demographics struct {
	MedianIncome     float64 `json:"median_income"`
	Population       int     `json:"population"`
	MedianAge        float64 `json:"median_age"`
	OwnerOccupiedPct float64 `json:"owner_occupied_pct"`
	CrimeIndex       float64 `json:"crime_index,omitempty"`
}

// School is one assigned or nearby school.
type School struct {
	Name   string  `json:"name"`
	Level  string  `json:"level"`
	Rating float64 `json:"rating"`
}

// SchoolReport lists nearby schools.
type SchoolReport struct {
	Schools   []School `json:"schools"`
	AvgRating float64  `json:"avg_rating"`
}

// EnvironmentalReport counts contaminated sites near the parcel.
type EnvironmentalReport struct {
	SuperfundSites  int      `json:"superfund_sites"`
	BrownfieldSites int      `json:"brownfield_sites"`
	Hazards         []string `json:"hazards,omitempty"`
}

// SeismicRisk is the seismic hazard at the parcel.
type SeismicRisk struct {
	HazardLevel string  `json:"hazard_level"`
	PeakGroundG float64 `json:"peak_ground_acceleration_g"`
}

// WetlandsReport flags mapped wetlands on or adjoining the parcel.
type WetlandsReport struct {
	Present bool   `json:"present"`
	Type    string `json:"type,omitempty"`
}

// HistoricStatus reports historic designation.
type HistoricStatus struct {
	InDistrict   bool   `json:"in_district"`
	DistrictName string `json:"district_name,omitempty"`
	Listed       bool   `json:"listed"`
}

// Walkability holds walk, transit and bike scores (0-100).
type Walkability struct {
	WalkScore    int `json:"walk_score"`
	TransitScore int `json:"transit_score"`
	BikeScore    int `json:"bike_score"`
}

// NoiseReport holds the ambient noise score (0-100, higher is quieter).
type NoiseReport struct {
	Score   int      `json:"score"`
	Sources []string `json:"sources,omitempty"`
}

// MortgageRates holds current average mortgage rates in percent.
type MortgageRates struct {
	ThirtyYearFixed  float64   `json:"thirty_year_fixed"`
	FifteenYearFixed float64   `json:"fifteen_year_fixed"`
	AsOf             time.Time `json:"as_of"`
}

// RentEstimate is an automated monthly rent estimate.
type RentEstimate struct {
	Rent float64 `json:"rent"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

func (*ParcelFacts) Kind() PayloadKind { return KindParcelFacts }
func (*TaxRecord) Kind() PayloadKind { return KindTaxRecord }
func (*Valuation) Kind() PayloadKind { return KindValuation }
func (*CompSet) Kind() PayloadKind { return KindCompSet }
func (*MarketTrend) Kind() PayloadKind { return KindMarketTrend }
func (*FloodRisk) Kind() PayloadKind { return KindFloodRisk }
func (*PermitHistory) Kind() PayloadKind { return KindPermitHistory }
func (*LienReport) Kind() PayloadKind { return KindLienReport }
func (*Demographics) Kind() PayloadKind { return KindDemographics }
func (*SchoolReport) Kind() PayloadKind { return KindSchoolReport }
func (*EnvironmentalReport) Kind() PayloadKind { return KindEnvironmental }
func (*SeismicRisk) Kind() PayloadKind { return KindSeismicRisk }
func (*WetlandsReport) Kind() PayloadKind { return KindWetlands }
func (*HistoricStatus) Kind() PayloadKind { return KindHistoric }
func (*Walkability) Kind() PayloadKind { return KindWalkability }
func (*NoiseReport) Kind() PayloadKind { return KindNoise }
func (*MortgageRates) Kind() PayloadKind { return KindMortgageRates }
func (*RentEstimate) Kind() PayloadKind { return KindRentEstimate }

// NewPayload returns an empty payload of the given kind.
func NewPayload(kind PayloadKind) (Payload, error) {
	switch kind {
	case KindParcelFacts:
		return &ParcelFacts{}, nil
	case KindTaxRecord:
		return &TaxRecord{}, nil
	case KindValuation:
		return &Valuation{}, nil
	case KindCompSet:
		return &CompSet{}, nil
	case KindMarketTrend:
		return &MarketTrend{}, nil
	case KindFloodRisk:
		return &FloodRisk{}, nil
	case KindPermitHistory:
		return &PermitHistory{}, nil
	case KindLienReport:
		return &LienReport{}, nil
	case KindDemographics:
		return &Demographics{}, nil
	case KindSchoolReport:
		return &SchoolReport{}, nil
	case KindEnvironmental:
		return &EnvironmentalReport{}, nil
	case KindSeismicRisk:
		return &SeismicRisk{}, nil
	case KindWetlands:
		return &WetlandsReport{}, nil
	case KindHistoric:
		return &HistoricStatus{}, nil
	case KindWalkability:
		return &Walkability{}, nil
	case KindNoise:
		return &NoiseReport{}, nil
	case KindMortgageRates:
		return &MortgageRates{}, nil
	case KindRentEstimate:
		return &RentEstimate{}, nil
	default:
		return nil, eris.Errorf("model: unknown payload kind %q", kind)
	}
}

// DecodePayload decodes a persisted payload of the given kind.
func DecodePayload(kind PayloadKind, raw []byte) (Payload, error) {
	p, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, eris.Wrapf(err, "model: decode %s payload", kind)
	}
	return p, nil
}
