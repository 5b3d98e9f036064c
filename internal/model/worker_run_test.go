package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRun_JSONKeepsPayloadVariant(t *testing.T) {
	t.Parallel()

	run := WorkerRun{
		JobID:      "job-1",
		Worker:     "avm",
		Category:   CategoryValuation,
		Status:     WorkerSucceeded,
		DurationMS: 120,
		StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload: &Valuation{
			Source:   "avm",
			Primary:  true,
			Estimate: 410000,
			SaleHistory: []SaleRecord{
				{Address: "123 Main St", Price: 305000, Date: time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)},
			},
		},
	}

	raw, err := json.Marshal(run)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"payload_kind":"valuation"`)

	var back WorkerRun
	require.NoError(t, json.Unmarshal(raw, &back))

	v, ok := back.Payload.(*Valuation)
	require.True(t, ok, "payload should decode to *Valuation, got %T", back.Payload)
	assert.Equal(t, 410000.0, v.Estimate)
	assert.True(t, v.Primary)
	require.Len(t, v.SaleHistory, 1)
	assert.Equal(t, "123 Main St", v.SaleHistory[0].Address)
}

func TestWorkerRun_JSONFailedHasNoPayload(t *testing.T) {
	t.Parallel()

	run := WorkerRun{Worker: "tax", Category: CategoryTax, Status: WorkerFailed, Error: "worker timed out"}
	raw, err := json.Marshal(run)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "payload")

	var back WorkerRun
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Nil(t, back.Payload)
	assert.Equal(t, "worker timed out", back.Error)
}

func TestDecodePayload_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload("mystery", []byte(`{}`))
	assert.Error(t, err)
}

func TestNewPayload_KindsRoundTrip(t *testing.T) {
	t.Parallel()

	kinds := []PayloadKind{
		KindParcelFacts, KindTaxRecord, KindValuation, KindCompSet, KindMarketTrend,
		KindFloodRisk, KindPermitHistory, KindLienReport, KindDemographics, KindSchoolReport,
		KindEnvironmental, KindSeismicRisk, KindWetlands, KindHistoric, KindWalkability,
		KindNoise, KindMortgageRates, KindRentEstimate,
	}
	for _, k := range kinds {
		p, err := NewPayload(k)
		require.NoError(t, err)
		assert.Equal(t, k, p.Kind())
	}
}
