package aggregate

import "github.com/sells-group/ads-insights/internal/model"

// CompareKPIs builds the dashboard KPI set for cur against prev. A change is
// 0 when the previous value is 0.
func CompareKPIs(cur, prev model.Aggregate, campaigns int) model.KPISet {
	return model.KPISet{
		Range:           cur.Range,
		Previous:        prev.Range,
		ROAS:            kpi(cur.ROAS, prev.ROAS),
		TotalSpend:      kpi(cur.Spend, prev.Spend),
		Revenue:         kpi(cur.ConversionValue, prev.ConversionValue),
		Conversions:     kpi(float64(cur.Conversions), float64(prev.Conversions)),
		CostPerPurchase: kpi(cur.CPA, prev.CPA),
		CTR:             kpi(cur.CTR, prev.CTR),
		CPM:             kpi(cur.CPM, prev.CPM),
		CampaignCount:   campaigns,
	}
}

func kpi(cur, prev float64) model.KPI {
	var change float64
	if prev > 0 {
		change = (cur - prev) / prev * 100
	}
	ct := model.ChangeNeutral
	switch {
	case change > 0:
		ct = model.ChangeIncrease
	case change < 0:
		ct = model.ChangeDecrease
	}
	return model.KPI{Value: cur, Change: change, ChangeType: ct}
}
