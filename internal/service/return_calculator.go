package service

import (
	"math"
	"strconv"
	"strings"

	"crypto-snapshot/internal/domain"
)

// ComputeReturn computes the day-over-day return of the top 20 market cap
// basket. found is false when there is no prior record or when the return is
// undefined; the latter also yields a *domain.CalculationError.
func ComputeReturn(todayTotal float64, prior *domain.SnapshotRecord) (ret domain.DailyReturn, found bool, err error) {
	if prior == nil {
		return domain.DailyReturn{}, false, nil
	}

	yesterday := prior.TotalPriceTop20ByMarketCap
	if yesterday == 0 {
		return domain.DailyReturn{}, false, &domain.CalculationError{Reason: "yesterday's total price is zero"}
	}

	percent := (todayTotal - yesterday) / yesterday * 100
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return domain.DailyReturn{}, false, &domain.CalculationError{Reason: "return is not a finite number"}
	}

	return domain.DailyReturn{
		Percent:   percent,
		Formatted: formatPercent(percent) + " %",
	}, true, nil
}

// formatPercent renders v with the shortest digits that round-trip. Values in
// [1e-4, 1e16) use positional notation and always keep a fractional part
// ("5.0"); anything else uses exponent notation ("1e-05").
func formatPercent(v float64) string {
	if v == 0 {
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
