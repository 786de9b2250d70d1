package performance

import (
	"github.com/shopspring/decimal"
)

// RiskStatistics summarizes open-position snapshots. Snapshots with a
// non-positive portfolio value contribute position counts only.
func RiskStatistics(snapshots []Snapshot) RiskStats {
	var stats RiskStats
	if len(snapshots) == 0 {
		return stats
	}

	var (
		counts   []decimal.Decimal
		heats    []decimal.Decimal
		deployed []decimal.Decimal
		sizes    []decimal.Decimal
	)
	maxHeat, maxDeployed, maxSize := decimal.Zero, decimal.Zero, decimal.Zero

	for _, s := range snapshots {
		n := len(s.Positions)
		counts = append(counts, decimal.NewFromInt(int64(n)))
		if n > stats.MaxConcurrentPositions {
			stats.MaxConcurrentPositions = n
		}
		if !s.PortfolioValue.IsPositive() {
			continue
		}

		risk, value := decimal.Zero, decimal.Zero
		for _, p := range s.Positions {
			risk = risk.Add(p.Risk)
			value = value.Add(p.Value.Abs())
			size := p.Value.Abs().Div(s.PortfolioValue).Mul(hundred)
			sizes = append(sizes, size)
			maxSize = decimal.Max(maxSize, size)
		}
		heat := risk.Div(s.PortfolioValue).Mul(hundred)
		dep := value.Div(s.PortfolioValue).Mul(hundred)
		heats = append(heats, heat)
		deployed = append(deployed, dep)
		maxHeat = decimal.Max(maxHeat, heat)
		maxDeployed = decimal.Max(maxDeployed, dep)
	}

	stats.AvgConcurrentPositions = quantize(mean(counts))
	stats.MaxPortfolioHeat = quantize(maxHeat)
	stats.AvgPortfolioHeat = quantize(mean(heats))
	stats.MaxPositionSizePct = quantize(maxSize)
	stats.AvgPositionSizePct = quantize(mean(sizes))
	stats.MaxCapitalDeployedPct = quantize(maxDeployed)
	stats.AvgCapitalDeployedPct = quantize(mean(deployed))
	return stats
}
