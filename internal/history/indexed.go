package history

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"crypto-index-lab/internal/domain"
)

// DeriveIndexedSeries turns a price series into a cumulative-return series.
// The first point is baseValue; every next point is
// prev * (1 + (price_i - price_{i-1}) / price_{i-1}).
// A zero previous price fails with domain.ErrDivisionByZero.
func DeriveIndexedSeries(series []*domain.HistoryPoint, baseValue float64) ([]domain.IndexedPoint, error) {
	if len(series) == 0 {
		return []domain.IndexedPoint{}, nil
	}
	if err := checkFinite("base value", baseValue); err != nil {
		return nil, err
	}

	out := make([]domain.IndexedPoint, len(series))
	value := decimal.NewFromFloat(baseValue)
	var prev decimal.Decimal

	for i, p := range series {
		if err := checkFinite(fmt.Sprintf("price at %d", p.Timestamp), p.Price); err != nil {
			return nil, err
		}
		price := decimal.NewFromFloat(p.Price)

		if i > 0 {
			if prev.IsZero() {
				return nil, fmt.Errorf("%w: previous price is zero at timestamp %d",
					domain.ErrDivisionByZero, p.Timestamp)
			}
			change := price.Sub(prev).Div(prev)
			value = value.Mul(decimal.NewFromInt(1).Add(change))
		}

		out[i] = domain.IndexedPoint{
			Timestamp: p.Timestamp,
			Price:     p.Price,
			Value:     value.InexactFloat64(),
		}
		prev = price
	}
	return out, nil
}

// IndexedPrices is DeriveIndexedSeries over bare prices, with the position used as timestamp.
func IndexedPrices(prices []float64, baseValue float64) ([]float64, error) {
	series := make([]*domain.HistoryPoint, len(prices))
	for i, p := range prices {
		series[i] = &domain.HistoryPoint{Timestamp: int64(i), Price: p}
	}
	points, err := DeriveIndexedSeries(series, baseValue)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out, nil
}

func checkFinite(what string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s is not finite: %v", what, v)
	}
	return nil
}
