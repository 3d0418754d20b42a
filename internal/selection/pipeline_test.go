package selection

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow    = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Constant curves keep the pressure and cap tests independent of the curve
// shapes, which have their own tests.
func constCurve(v float64) Curve { return func(int) float64 { return v } }

func testSelectionCfg() config.SelectionConfig {
	return config.SelectionConfig{
		Assets:                 []string{"BTC"},
		StableCoin:             "USDT",
		ShortTermBoundaryHours: 48,
		AbsRatioThreshold:      20,
		PressureStepPercent:    10,
		MaxTotalPositions:      10,
		MaxPositionsPerPair:    3,
		MaxShortTermPerPair:    2,
	}
}

func newTestPipeline(cfg config.SelectionConfig) *Pipeline {
	return NewPipeline(cfg, constCurve(0.001), constCurve(0.002), constCurve(0.0005), discardLog)
}

// mkProduct builds a product whose actual ROI lands exactly on roi and whose
// break-even sits on the spot price, so the abs-ratio check is essentially
// zero unless the strike is moved.
func mkProduct(id string, ot domain.OptionType, settleIn time.Duration, roi float64) domain.Product {
	days := domain.RoundDays(settleIn.Hours())
	spot := 60000.0
	var strike float64
	p := domain.Product{
		ID:           id,
		OptionType:   ot,
		APR:          roi * 365 / float64(days),
		SettleDate:   testNow.Add(settleIn),
		SpotPrice:    spot,
		MinSubscribe: 100,
		MaxSubscribe: 10_000,
	}
	if ot == domain.OptionTypeCall {
		strike = spot / (1 + roi)
		p.InvestCoin, p.ExercisedCoin = "BTC", "USDT"
	} else {
		strike = spot / (1 - roi)
		p.ExercisedCoin, p.InvestCoin = "BTC", "USDT"
	}
	p.StrikePrice = strike
	return p
}

func snapOf(products ...domain.Product) domain.MarketSnapshot {
	return domain.MarketSnapshot{Products: products, FetchedAt: testNow}
}

func TestPipelineAcceptsQualifyingProduct(t *testing.T) {
	p := newTestPipeline(testSelectionCfg())

	// 72h out is long-term; roi 0.003 clears the 0.002 constant target.
	prod := mkProduct("p1", domain.OptionTypeCall, 72*time.Hour, 0.003)
	got := p.Run(snapOf(prod), nil, testNow)

	require.Len(t, got, 1)
	sp := got[0]
	assert.Equal(t, "p1", sp.ID)
	assert.Equal(t, 3, sp.RoundedDays)
	assert.InDelta(t, 0.003, sp.ActualRoi, 1e-12)
	assert.InDelta(t, 0.002, sp.TargetRoi, 1e-12)
	assert.Equal(t, "BTCUSDT", sp.Pair())
	assert.Greater(t, sp.BreakEven, sp.StrikePrice, "CALL break-even above strike")
}

func TestPipelineRejectsBelowTargetAndFloor(t *testing.T) {
	cfg := testSelectionCfg()
	p := NewPipeline(cfg, constCurve(0.001), constCurve(0.002), constCurve(0.0029), discardLog)

	// Clears the target but not the floor.
	floored := mkProduct("floored", domain.OptionTypeCall, 72*time.Hour, 0.0025)
	// Below the target outright.
	weak := mkProduct("weak", domain.OptionTypeCall, 72*time.Hour, 0.0015)

	got := p.Run(snapOf(floored, weak), nil, testNow)
	assert.Empty(t, got)
}

func TestPipelineSkipsMalformedProducts(t *testing.T) {
	p := newTestPipeline(testSelectionCfg())

	noSpot := mkProduct("no-spot", domain.OptionTypeCall, 72*time.Hour, 0.003)
	noSpot.SpotPrice = 0
	nanAPR := mkProduct("nan-apr", domain.OptionTypeCall, 72*time.Hour, 0.003)
	nanAPR.APR = math.NaN()
	expired := mkProduct("expired", domain.OptionTypeCall, -time.Hour, 0.003)
	good := mkProduct("good", domain.OptionTypeCall, 72*time.Hour, 0.003)

	got := p.Run(snapOf(noSpot, nanAPR, expired, good), nil, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].ID)
}

func TestPipelineDeduplicatesByID(t *testing.T) {
	p := newTestPipeline(testSelectionCfg())

	prod := mkProduct("dup", domain.OptionTypeCall, 72*time.Hour, 0.003)
	got := p.Run(snapOf(prod, prod, prod), nil, testNow)
	assert.Len(t, got, 1)
}

func TestPipelineAbsRatioBoundaryInclusive(t *testing.T) {
	// Move the strike off break-even parity so the buffer is real, then
	// replicate the scoring arithmetic to find the exact ratio.
	prod := mkProduct("edge", domain.OptionTypeCall, 72*time.Hour, 0.003)
	prod.StrikePrice = 59000

	actualRoi := prod.APR / 365 * 3
	breakEven := domain.BreakEven(prod.StrikePrice, actualRoi, prod.OptionType)
	buffer := (breakEven - prod.SpotPrice) / prod.SpotPrice * 100
	ratio := math.Abs(buffer) / actualRoi
	require.Greater(t, ratio, 0.0)

	cfg := testSelectionCfg()
	cfg.AbsRatioThreshold = ratio
	got := newTestPipeline(cfg).Run(snapOf(prod), nil, testNow)
	assert.Len(t, got, 1, "a product exactly at the threshold is accepted")

	cfg.AbsRatioThreshold = ratio * 0.999
	got = newTestPipeline(cfg).Run(snapOf(prod), nil, testNow)
	assert.Empty(t, got, "a product strictly above the threshold is rejected")
}

func TestPipelineVolatilityDateRejection(t *testing.T) {
	cfg := testSelectionCfg()
	prod := mkProduct("vol", domain.OptionTypeCall, 72*time.Hour, 0.003)
	cfg.VolatilityDates = []string{prod.SettleDate.UTC().Format("2006-01-02")}

	got := newTestPipeline(cfg).Run(snapOf(prod), nil, testNow)
	assert.Empty(t, got)

	// A settle date one day later is fine again.
	later := mkProduct("ok", domain.OptionTypeCall, 96*time.Hour, 0.003)
	got = newTestPipeline(cfg).Run(snapOf(later), nil, testNow)
	assert.Len(t, got, 1)
}

func TestPipelineLongTermPressureFromOpenPositions(t *testing.T) {
	p := newTestPipeline(testSelectionCfg())

	// Two open positions on the pair: required = 0.002 * (1 + 0.10*2).
	active := []domain.ActivePosition{
		{Position: domain.Position{ID: "a", Pair: "BTCUSDT"}},
		{Position: domain.Position{ID: "b", Pair: "BTCUSDT"}},
	}

	under := mkProduct("under", domain.OptionTypeCall, 72*time.Hour, 0.0022)
	got := p.Run(snapOf(under), active, testNow)
	assert.Empty(t, got, "0.0022 < 0.0024 required under pressure")

	over := mkProduct("over", domain.OptionTypeCall, 72*time.Hour, 0.0025)
	got = p.Run(snapOf(over), active, testNow)
	assert.Len(t, got, 1, "0.0025 clears the pressured requirement")
}

func TestPipelineShortTermDuplicatePressure(t *testing.T) {
	p := newTestPipeline(testSelectionCfg())

	// Both 24h out, same pair and settle day, roi 0.00105: the first clears
	// the 0.001 target, the second needs 0.0011 and fails.
	first := mkProduct("st1", domain.OptionTypePut, 24*time.Hour, 0.00105)
	second := mkProduct("st2", domain.OptionTypePut, 24*time.Hour, 0.00105)

	got := p.Run(snapOf(first, second), nil, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "st1", got[0].ID)
}

func TestPipelinePerPairCapsNetOfOpen(t *testing.T) {
	cfg := testSelectionCfg()
	cfg.MaxPositionsPerPair = 2
	cfg.MaxShortTermPerPair = 2
	cfg.PressureStepPercent = 0 // isolate the cap behavior
	p := newTestPipeline(cfg)

	var products []domain.Product
	for i := 0; i < 4; i++ {
		products = append(products,
			mkProduct(fmt.Sprintf("lt%d", i), domain.OptionTypeCall, 72*time.Hour, 0.003+0.0001*float64(i)))
	}

	got := p.Run(snapOf(products...), nil, testNow)
	require.Len(t, got, 2, "per-pair cap of two")
	assert.Equal(t, "lt3", got[0].ID, "highest margin kept first")
	assert.Equal(t, "lt2", got[1].ID)

	// One open position on the pair shrinks the room to one.
	active := []domain.ActivePosition{{Position: domain.Position{ID: "x", Pair: "BTCUSDT"}}}
	got = p.Run(snapOf(products...), active, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "lt3", got[0].ID)
}

func TestPipelineTotalCapTruncatesLowestMargin(t *testing.T) {
	cfg := testSelectionCfg()
	cfg.MaxTotalPositions = 3
	cfg.MaxPositionsPerPair = 10
	cfg.PressureStepPercent = 0
	p := newTestPipeline(cfg)

	var products []domain.Product
	for i := 0; i < 5; i++ {
		products = append(products,
			mkProduct(fmt.Sprintf("p%d", i), domain.OptionTypeCall, 72*time.Hour, 0.003+0.0001*float64(i)))
	}

	// Two active positions anywhere leave room for exactly one candidate.
	active := []domain.ActivePosition{
		{Position: domain.Position{ID: "a", Pair: "ETHUSDT"}},
		{Position: domain.Position{ID: "b", Pair: "ETHUSDT"}},
	}
	got := p.Run(snapOf(products...), active, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "p4", got[0].ID, "the highest margin survives truncation")
}

func TestPipelineNoRoomWhenAtTotalCap(t *testing.T) {
	cfg := testSelectionCfg()
	cfg.MaxTotalPositions = 1
	p := newTestPipeline(cfg)

	active := []domain.ActivePosition{{Position: domain.Position{ID: "a", Pair: "ETHUSDT"}}}
	prod := mkProduct("p1", domain.OptionTypeCall, 72*time.Hour, 0.003)

	got := p.Run(snapOf(prod), active, testNow)
	assert.Empty(t, got)
}
