package model

import "time"

// ResearchSubject is an address-identified research target. One subject exists
// per normalized address; it is never modified after creation.
type ResearchSubject struct {
	ID                string    `json:"id"`
	NormalizedAddress string    `json:"normalized_address"`
	RawAddress        string    `json:"raw_address"`
	Street            string    `json:"street"`
	City              string    `json:"city,omitempty"`
	State             string    `json:"state,omitempty"`
	PostalCode        string    `json:"postal_code,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// PortfolioProperty summarizes another subject's latest completed research.
// It feeds the lowest-confidence comparable source.
type PortfolioProperty struct {
	SubjectID string  `json:"subject_id"`
	Address   string  `json:"address"`
	Beds      float64 `json:"beds"`
	Baths     float64 `json:"baths"`
	Sqft      int     `json:"sqft"`
	Value     float64 `json:"value"`
}
