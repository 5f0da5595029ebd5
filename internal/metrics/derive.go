// Package metrics derives ratio KPIs (CTR, CPC, CPM, ROAS, CPA) from raw
// advertising counters.
package metrics

import (
	"fmt"
	"math"

	"github.com/sells-group/ads-insights/internal/model"
)

// ValidationError reports a counter or signal outside its legal domain.
// Callers get this instead of a silently clamped value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("metrics: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Derive computes the ratio set for c. Every ratio is 0 when its denominator
// is 0. Negative or non-finite counters return a *ValidationError.
func Derive(c model.Counters) (model.Ratios, error) {
	if err := validateCounters(c); err != nil {
		return model.Ratios{}, err
	}
	return ratios(c), nil
}

// DeriveRow validates every numeric field of r and fills its ratios in place.
func DeriveRow(r *model.InsightRow) error {
	if err := validateCounters(r.Counters); err != nil {
		return err
	}
	if err := nonNegative("frequency", r.Frequency); err != nil {
		return err
	}
	if r.Reach < 0 {
		return &ValidationError{Field: "reach", Value: r.Reach, Reason: "must be non-negative"}
	}
	if r.RelevanceScore != nil {
		s := *r.RelevanceScore
		if math.IsNaN(s) || s < 1 || s > 10 {
			return &ValidationError{Field: "relevance_score", Value: s, Reason: "must be within [1,10]"}
		}
	}
	if !r.QualityRanking.Valid() {
		return &ValidationError{Field: "quality_ranking", Value: r.QualityRanking, Reason: "unknown ranking"}
	}
	r.Ratios = ratios(r.Counters)
	return nil
}

func ratios(c model.Counters) model.Ratios {
	spend := c.Spend
	impressions := float64(c.Impressions)
	clicks := float64(c.Clicks)
	conversions := float64(c.Conversions)

	return model.Ratios{
		CTR:  safeDiv(clicks, impressions) * 100,
		CPC:  safeDiv(spend, clicks),
		CPM:  safeDiv(spend, impressions) * 1000,
		ROAS: safeDiv(c.ConversionValue, spend),
		CPA:  safeDiv(spend, conversions),
	}
}

func validateCounters(c model.Counters) error {
	if err := nonNegative("spend", c.Spend); err != nil {
		return err
	}
	if err := nonNegative("conversion_value", c.ConversionValue); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"impressions", c.Impressions},
		{"clicks", c.Clicks},
		{"conversions", c.Conversions},
	} {
		if f.v < 0 {
			return &ValidationError{Field: f.name, Value: f.v, Reason: "must be non-negative"}
		}
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Value: v, Reason: "must be finite"}
	}
	if v < 0 {
		return &ValidationError{Field: field, Value: v, Reason: "must be non-negative"}
	}
	return nil
}

func safeDiv(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}
