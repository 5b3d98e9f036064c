package worker

import (
	"time"

	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/pkg/propdata"
)

// Provider client names used by the default catalog.
const (
	ProviderCounty        = "county_records"
	ProviderAVM           = "avm"
	ProviderAVMSecondary  = "avm_secondary"
	ProviderListings      = "listings"
	ProviderFlood         = "flood"
	ProviderCensus        = "census"
	ProviderSchools       = "schools"
	ProviderEnvironmental = "environmental"
	ProviderGeology       = "geology"
	ProviderWetlands      = "wetlands"
	ProviderHistoric      = "historic"
	ProviderWalkability   = "walkability"
	ProviderNoise         = "noise"
	ProviderRates         = "rates"
	ProviderRentals       = "rentals"
)

// catalog is the default worker set, in dispatch order.
var catalog = []def{
	{name: "parcel", category: model.CategoryParcel, set: Standard, critical: true,
		label: "Fetching parcel facts", provider: ProviderCounty, path: "/v1/parcel"},
	{name: "tax", category: model.CategoryTax, set: Standard, critical: true,
		label: "Fetching tax records", provider: ProviderCounty, path: "/v1/tax"},
	{name: "avm", category: model.CategoryValuation, set: Standard, critical: true,
		label: "Fetching automated valuation", provider: ProviderAVM, path: "/v1/valuation"},
	{name: "avm_secondary", category: model.CategoryValuation, set: Standard,
		label: "Fetching secondary valuation", provider: ProviderAVMSecondary, path: "/v1/valuation"},
	{name: "comps_sales", category: model.CategoryCompsSales, set: Standard, timeout: 30 * time.Second,
		label: "Fetching comparable sales", provider: ProviderListings, path: "/v1/comps"},
	{name: "comps_rentals", category: model.CategoryCompsRentals, set: Standard, timeout: 30 * time.Second,
		label: "Fetching comparable rentals", provider: ProviderListings, path: "/v1/comps"},
	{name: "market_trend", category: model.CategoryMarket, set: Standard,
		label: "Analyzing market trend", provider: ProviderListings, path: "/v1/market"},
	{name: "flood", category: model.CategoryRisk, set: Standard,
		label: "Checking flood zone", provider: ProviderFlood, path: "/v1/flood"},
	{name: "permits", category: model.CategoryRisk, set: Standard,
		label: "Pulling permit history", provider: ProviderCounty, path: "/v1/permits"},
	{name: "liens", category: model.CategoryRisk, set: Standard,
		label: "Searching liens", provider: ProviderCounty, path: "/v1/liens"},
	{name: "demographics", category: model.CategoryNeighborhood, set: Standard,
		label: "Fetching demographics", provider: ProviderCensus, path: "/v1/demographics"},
	{name: "schools", category: model.CategoryNeighborhood, set: Standard,
		label: "Rating nearby schools", provider: ProviderSchools, path: "/v1/schools"},

	{name: "environmental", category: model.CategoryRisk, set: Extended,
		label: "Screening environmental hazards", provider: ProviderEnvironmental, path: "/v1/sites"},
	{name: "seismic", category: model.CategoryRisk, set: Extended,
		label: "Checking seismic hazard", provider: ProviderGeology, path: "/v1/seismic"},
	{name: "wetlands", category: model.CategoryRisk, set: Extended,
		label: "Checking wetlands", provider: ProviderWetlands, path: "/v1/wetlands"},
	{name: "historic", category: model.CategoryRisk, set: Extended,
		label: "Checking historic designation", provider: ProviderHistoric, path: "/v1/historic"},
	{name: "walkability", category: model.CategoryNeighborhood, set: Extended,
		label: "Scoring walkability", provider: ProviderWalkability, path: "/v1/score"},
	{name: "noise", category: model.CategoryNeighborhood, set: Extended,
		label: "Scoring ambient noise", provider: ProviderNoise, path: "/v1/noise"},
	{name: "mortgage_rates", category: model.CategoryFinancing, set: Extended,
		label: "Fetching mortgage rates", provider: ProviderRates, path: "/v1/rates"},
	{name: "rent_estimate", category: model.CategoryRent, set: Extended,
		label: "Estimating rent", provider: ProviderRentals, path: "/v1/rent"},
}

// build constructs the adapter named by b.
func build(b base) Worker {
	switch b.name {
	case "parcel":
		return &parcelWorker{b}
	case "tax":
		return &taxWorker{b}
	case "avm":
		return &valuationWorker{base: b, primary: true}
	case "avm_secondary":
		return &valuationWorker{base: b}
	case "comps_sales":
		return &compsWorker{base: b, kind: model.CompKindSales}
	case "comps_rentals":
		return &compsWorker{base: b, kind: model.CompKindRentals}
	case "market_trend":
		return &passthrough[model.MarketTrend, *model.MarketTrend]{base: b, finish: finishTrend}
	case "flood":
		return &passthrough[model.FloodRisk, *model.FloodRisk]{base: b, finish: finishFlood}
	case "permits":
		return &passthrough[model.PermitHistory, *model.PermitHistory]{base: b, finish: finishPermits}
	case "liens":
		return &passthrough[model.LienReport, *model.LienReport]{base: b}
	case "demographics":
		return &passthrough[model.Demographics, *model.Demographics]{base: b}
	case "schools":
		return &passthrough[model.SchoolReport, *model.SchoolReport]{base: b, finish: finishSchools}
	case "environmental":
		return &passthrough[model.EnvironmentalReport, *model.EnvironmentalReport]{base: b}
	case "seismic":
		return &passthrough[model.SeismicRisk, *model.SeismicRisk]{base: b, finish: finishSeismic}
	case "wetlands":
		return &passthrough[model.WetlandsReport, *model.WetlandsReport]{base: b}
	case "historic":
		return &passthrough[model.HistoricStatus, *model.HistoricStatus]{base: b}
	case "walkability":
		return &passthrough[model.Walkability, *model.Walkability]{base: b}
	case "noise":
		return &passthrough[model.NoiseReport, *model.NoiseReport]{base: b}
	case "mortgage_rates":
		return &passthrough[model.MortgageRates, *model.MortgageRates]{base: b, finish: finishMortgageRates}
	case "rent_estimate":
		return &passthrough[model.RentEstimate, *model.RentEstimate]{base: b, finish: finishRentEstimate}
	default:
		return nil
	}
}

// NewDefaultRegistry builds the standard and extended worker catalog on the
// given provider clients. cat may be nil; disabled entries are left out.
func NewDefaultRegistry(providers propdata.Providers, cat *Catalog) (*Registry, error) {
	reg := NewRegistry()
	for _, d := range catalog {
		e := cat.entry(d.name)
		if e.Disabled {
			continue
		}
		if e.Provider != "" {
			d.provider = e.Provider
		}
		w := build(base{def: d, client: providers.Client(d.provider)})
		if err := reg.Register(e.apply(w)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
