package model

import "time"

// Range is a low/base/high estimate.
type Range struct {
	Low  float64 `json:"low"`
	Base float64 `json:"base"`
	High float64 `json:"high"`
}

// YieldBucket classifies a gross rental yield.
type YieldBucket string

const (
	YieldExcellent YieldBucket = "excellent"
	YieldGood      YieldBucket = "good"
	YieldAverage   YieldBucket = "average"
	YieldPoor      YieldBucket = "poor"
)

// PropertyProfile merges parcel and tax facts.
type PropertyProfile struct {
	APN            string   `json:"apn,omitempty"`
	PropertyType   string   `json:"property_type,omitempty"`
	Beds           float64  `json:"beds"`
	Baths          float64  `json:"baths"`
	Sqft           int      `json:"sqft"`
	LotSqft        int      `json:"lot_sqft,omitempty"`
	YearBuilt      int      `json:"year_built,omitempty"`
	OwnerNames     []string `json:"owner_names,omitempty"`
	AssessedValue  float64  `json:"assessed_value,omitempty"`
	AnnualTax      float64  `json:"annual_tax,omitempty"`
	EstimatedValue float64  `json:"estimated_value,omitempty"`
}

// Underwriting is the output of the underwriting calculator.
type Underwriting struct {
	ARV               Range       `json:"arv"`
	Rent              Range       `json:"rent"`
	Rehab             Range       `json:"rehab"`
	RehabRatePerSqft  float64     `json:"rehab_rate_per_sqft"`
	ClosingCostPct    float64     `json:"closing_cost_pct"`
	ProfitMarginPct   float64     `json:"profit_margin_pct"`
	MaxAllowableOffer float64     `json:"max_allowable_offer"`
	CashFlowCap       float64     `json:"cash_flow_cap,omitempty"`
	RecommendedOffer  float64     `json:"recommended_offer"`
	RentalYield       float64     `json:"rental_yield,omitempty"`
	RentalYieldBucket YieldBucket `json:"rental_yield_bucket,omitempty"`
	LowConfidence     bool        `json:"low_confidence"`
	ARVSource         string      `json:"arv_source"`
}

// CompSource identifies where a comparable candidate came from.
type CompSource string

const (
	CompSourceWorker    CompSource = "worker"
	CompSourceHistory   CompSource = "valuation_history"
	CompSourcePortfolio CompSource = "portfolio"
)

// ScoredComp is a comparable ranked against the subject.
type ScoredComp struct {
	CompRecord
	Source     CompSource `json:"source"`
	Score      float64    `json:"score"`
	Confidence float64    `json:"confidence"`
}

// RiskBlock holds the risk score, data confidence and compliance flags.
type RiskBlock struct {
	Score           float64  `json:"score"`
	DataConfidence  float64  `json:"data_confidence"`
	LowConfidence   bool     `json:"low_confidence"`
	FloodZone       string   `json:"flood_zone,omitempty"`
	ComplianceFlags []string `json:"compliance_flags"`
	Warnings        []string `json:"warnings"`
}

// Neighborhood collects neighborhood metrics and their narrative.
type Neighborhood struct {
	MedianIncome float64        `json:"median_income,omitempty"`
	Population   int            `json:"population,omitempty"`
	SchoolRating float64        `json:"school_rating,omitempty"`
	WalkScore    int            `json:"walk_score,omitempty"`
	TransitScore int            `json:"transit_score,omitempty"`
	NoiseScore   int            `json:"noise_score,omitempty"`
	MarketTrend  TrendDirection `json:"market_trend,omitempty"`
	YoYChangePct float64        `json:"yoy_change_pct,omitempty"`
	Narrative    string         `json:"narrative"`
}

// ResearchOutput is the final aggregated result of a completed job.
type ResearchOutput struct {
	JobID        string           `json:"job_id"`
	Subject      ResearchSubject  `json:"subject"`
	Strategy     Strategy         `json:"strategy"`
	RehabTier    RehabTier        `json:"rehab_tier"`
	Profile      *PropertyProfile `json:"property_profile,omitempty"`
	Underwriting Underwriting     `json:"underwriting"`
	SalesComps   []ScoredComp     `json:"sales_comps"`
	RentalComps  []ScoredComp     `json:"rental_comps"`
	Risk         RiskBlock        `json:"risk"`
	Neighborhood Neighborhood     `json:"neighborhood"`
	Dossier      string           `json:"dossier"`
	WorkerRuns   []WorkerRun      `json:"worker_runs"`
	GeneratedAt  time.Time        `json:"generated_at"`
}
