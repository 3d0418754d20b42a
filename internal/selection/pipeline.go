package selection

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Pipeline scores and filters dual-investment products against the
// configured risk policy. It is stateless between runs; every Run sees one
// snapshot and one active-position set.
type Pipeline struct {
	cfg   config.SelectionConfig
	short Curve
	long  Curve
	floor Curve
	log   *slog.Logger

	// volDates is the high-volatility calendar, normalized to date strings.
	volDates map[string]bool
}

// NewPipeline builds a Pipeline with the given curves. Curves are passed in
// rather than derived here so tests and alternative policies can inject
// their own.
func NewPipeline(cfg config.SelectionConfig, short, long, floor Curve, logger *slog.Logger) *Pipeline {
	vol := make(map[string]bool, len(cfg.VolatilityDates))
	for _, d := range cfg.VolatilityDates {
		vol[d] = true
	}
	return &Pipeline{
		cfg:      cfg,
		short:    short,
		long:     long,
		floor:    floor,
		log:      logger.With("component", "selection"),
		volDates: vol,
	}
}

// Run produces the ranked execution list for one cycle. Individual bad
// products are skipped and logged; they never fail the run.
func (p *Pipeline) Run(snap domain.MarketSnapshot, active []domain.ActivePosition, now time.Time) []domain.ScoredProduct {
	openPerPair := make(map[string]int, len(active))
	for _, pos := range active {
		openPerPair[pos.Pair]++
	}

	var shortTerm, longTerm []domain.ScoredProduct
	seen := make(map[string]bool, len(snap.Products))

	// shortTermQueued counts candidates already accepted this run for the
	// same pair and settle day; it drives the short-term pressure term.
	shortTermQueued := make(map[string]int)

	for _, prod := range snap.Products {
		if seen[prod.ID] {
			continue
		}
		seen[prod.ID] = true

		isShort := prod.HoursToExpiry(now) <= p.cfg.ShortTermBoundaryHours

		sp, ok := p.score(prod, now, isShort)
		if !ok {
			continue
		}

		// Pressure adjustment: concentration raises the bar. Long-term
		// pressure counts open positions on the pair; short-term pressure
		// counts duplicates already queued for the same pair and settle day.
		var units int
		if isShort {
			units = shortTermQueued[shortKey(sp)]
		} else {
			units = openPerPair[sp.Pair()]
		}
		required := sp.TargetRoi * (1 + p.cfg.PressureStepPercent/100*float64(units))
		if sp.ActualRoi < required {
			p.log.Debug("product rejected by pressure",
				"product_id", sp.ID, "pair", sp.Pair(),
				"actual_roi", sp.ActualRoi, "required_roi", required, "pressure_units", units)
			continue
		}

		if isShort {
			shortTermQueued[shortKey(sp)]++
			shortTerm = append(shortTerm, sp)
		} else {
			longTerm = append(longTerm, sp)
		}
	}

	shortTerm = capPerPair(shortTerm, openPerPair, min(p.cfg.MaxPositionsPerPair, p.cfg.MaxShortTermPerPair))
	longTerm = capPerPair(longTerm, openPerPair, p.cfg.MaxPositionsPerPair)

	combined := append(shortTerm, longTerm...)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Margin() > combined[j].Margin()
	})

	room := p.cfg.MaxTotalPositions - len(active)
	if room < 0 {
		room = 0
	}
	if len(combined) > room {
		combined = combined[:room]
	}
	return combined
}

// score runs the per-product numeric checks (steps that do not depend on
// other candidates). Returns false when the product is rejected or skipped.
func (p *Pipeline) score(prod domain.Product, now time.Time, isShort bool) (domain.ScoredProduct, bool) {
	if prod.SpotPrice <= 0 {
		p.log.Debug("product skipped, no spot price", "product_id", prod.ID, "pair", prod.Pair())
		return domain.ScoredProduct{}, false
	}
	if prod.APR <= 0 || math.IsNaN(prod.APR) || math.IsInf(prod.APR, 0) {
		p.log.Debug("product skipped, malformed apr", "product_id", prod.ID, "apr", prod.APR)
		return domain.ScoredProduct{}, false
	}
	hours := prod.HoursToExpiry(now)
	if hours <= 0 {
		return domain.ScoredProduct{}, false
	}

	days := domain.RoundDays(hours)
	actualRoi := prod.APR / 365 * float64(days)

	curve := p.long
	if isShort {
		curve = p.short
	}
	targetRoi := curve(days)

	if actualRoi < targetRoi {
		return domain.ScoredProduct{}, false
	}

	breakEven := domain.BreakEven(prod.StrikePrice, actualRoi, prod.OptionType)
	bufferPercent := (breakEven - prod.SpotPrice) / prod.SpotPrice * 100

	if actualRoi < p.floor(days) {
		return domain.ScoredProduct{}, false
	}

	// Zero ROI would make the ratio unbounded; the APR check above already
	// excludes it, but guard the division regardless.
	if actualRoi == 0 {
		return domain.ScoredProduct{}, false
	}
	absRatio := math.Abs(bufferPercent) / actualRoi
	if absRatio > p.cfg.AbsRatioThreshold {
		return domain.ScoredProduct{}, false
	}

	if p.volDates[prod.SettleDate.UTC().Format("2006-01-02")] {
		p.log.Debug("product rejected, volatility date",
			"product_id", prod.ID, "settle_date", prod.SettleDate.Format("2006-01-02"))
		return domain.ScoredProduct{}, false
	}

	return domain.ScoredProduct{
		Product:       prod,
		RoundedDays:   days,
		TargetRoi:     targetRoi,
		ActualRoi:     actualRoi,
		BreakEven:     breakEven,
		BufferPercent: bufferPercent,
		AbsRatio:      absRatio,
	}, true
}

// capPerPair keeps at most limit candidates per pair, net of positions
// already open on that pair, preferring the highest selection margin.
func capPerPair(products []domain.ScoredProduct, openPerPair map[string]int, limit int) []domain.ScoredProduct {
	byPair := make(map[string][]domain.ScoredProduct)
	var pairs []string
	for _, sp := range products {
		pair := sp.Pair()
		if _, ok := byPair[pair]; !ok {
			pairs = append(pairs, pair)
		}
		byPair[pair] = append(byPair[pair], sp)
	}

	var out []domain.ScoredProduct
	for _, pair := range pairs {
		group := byPair[pair]
		room := limit - openPerPair[pair]
		if room <= 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Margin() > group[j].Margin()
		})
		if len(group) > room {
			group = group[:room]
		}
		out = append(out, group...)
	}
	return out
}

// shortKey buckets a short-term candidate by pair and settle day for the
// duplicate-pressure count.
func shortKey(sp domain.ScoredProduct) string {
	return sp.Pair() + ":" + sp.SettleDate.UTC().Format("2006-01-02")
}
