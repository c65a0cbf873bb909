package profit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
)

func TestCorrectedIgnoresStoredField(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		line := erp.Record{
			Kind:     erp.KindSaleLine,
			Revenue:  math.Round(rng.Float64()*100000) / 100,
			Quantity: float64(rng.Intn(20)),
			UnitCost: math.Round(rng.Float64()*5000) / 100,
		}
		line.StoredProfit = -line.UnitCost

		want := line.Revenue - line.UnitCost*line.Quantity
		got := Corrected(line)
		assert.InDelta(t, want, got, 1e-6)
		if math.Abs(want-line.StoredProfit) > 1e-6 {
			assert.NotEqual(t, line.StoredProfit, got)
		}
	}
}

func TestCorrectedTreatsMissingAsZero(t *testing.T) {
	assert.Equal(t, 0.0, Corrected(erp.Record{}))
	assert.Equal(t, 25.0, Corrected(erp.Record{Revenue: 25}))
	assert.Equal(t, -12.0, Corrected(erp.Record{UnitCost: 4, Quantity: 3}))
}

func TestMarginPctNeverDividesByZero(t *testing.T) {
	assert.Equal(t, 0.0, MarginPct(50, 0))
	assert.Equal(t, 0.0, MarginPct(0, 0))
	assert.InDelta(t, 25.0, MarginPct(25, 100), 1e-9)
	assert.InDelta(t, -50.0, MarginPct(-50, 100), 1e-9)
	assert.Equal(t, 0.0, MarginPctDecimal(decimal.NewFromInt(5), decimal.Zero))
	assert.InDelta(t, 40.0, MarginPctDecimal(decimal.NewFromInt(40), decimal.NewFromInt(100)), 1e-9)
}

func TestStoredIsCorrupt(t *testing.T) {
	corrupt := erp.Record{Revenue: 100, UnitCost: 30, Quantity: 2, StoredProfit: -30}
	assert.True(t, StoredIsCorrupt(corrupt))

	healthy := erp.Record{Revenue: 100, UnitCost: 30, Quantity: 2, StoredProfit: 40}
	assert.False(t, StoredIsCorrupt(healthy))

	assert.False(t, StoredIsCorrupt(erp.Record{Revenue: 10}))
}

func TestAttachCopies(t *testing.T) {
	in := []erp.Record{{Revenue: 10, UnitCost: 2, Quantity: 3}}
	out := Attach(in)
	assert.Equal(t, 4.0, out[0].CorrectedProfit)
	assert.Equal(t, 0.0, in[0].CorrectedProfit)
}
