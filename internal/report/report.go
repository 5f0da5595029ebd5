// Package report exports campaign performance to XLSX workbooks.
package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ads-insights/internal/aggregate"
	"github.com/sells-group/ads-insights/internal/model"
)

// Sheet names.
const (
	SheetCampaigns = "Campaigns"
	SheetDaily     = "Daily"
)

var campaignHeader = []string{
	"Campaign ID", "Campaign", "Days", "Spend", "Impressions", "Clicks",
	"Conversions", "Revenue", "CTR %", "CPC", "CPM", "ROAS", "CPA",
}

var dailyHeader = []string{
	"Date", "Spend", "Impressions", "Clicks", "Conversions", "Revenue",
	"CTR %", "CPC", "CPM", "ROAS", "Target ROAS",
}

// Report is the content of one export.
type Report struct {
	Range     model.DateRange
	Campaigns []model.Aggregate
	Daily     []model.DailyPoint
}

// Build aggregates rows over r.
func Build(rows []model.InsightRow, r model.DateRange) (*Report, error) {
	campaigns, err := aggregate.ByCampaign(rows, r)
	if err != nil {
		return nil, eris.Wrap(err, "report: campaigns")
	}
	daily, err := aggregate.Daily(rows, r)
	if err != nil {
		return nil, eris.Wrap(err, "report: daily")
	}
	return &Report{Range: r, Campaigns: campaigns, Daily: daily}, nil
}

// WriteXLSX saves a workbook with a Campaigns sheet and a Daily sheet.
func WriteXLSX(path string, campaigns []model.Aggregate, daily []model.DailyPoint) error {
	f := xlsx.NewFile()

	cs, err := f.AddSheet(SheetCampaigns)
	if err != nil {
		return eris.Wrap(err, "report: add campaigns sheet")
	}
	addHeader(cs, campaignHeader)
	for _, a := range campaigns {
		row := cs.AddRow()
		addString(row, a.CampaignID)
		addString(row, a.CampaignName)
		row.AddCell().SetInt(a.Days)
		addCounters(row, a.Counters)
		addFloat(row, a.CTR)
		addFloat(row, a.CPC)
		addFloat(row, a.CPM)
		addFloat(row, a.ROAS)
		addFloat(row, a.CPA)
	}

	ds, err := f.AddSheet(SheetDaily)
	if err != nil {
		return eris.Wrap(err, "report: add daily sheet")
	}
	addHeader(ds, dailyHeader)
	for _, p := range daily {
		row := ds.AddRow()
		addString(row, p.Date.Format(model.DateLayout))
		addCounters(row, p.Counters)
		addFloat(row, p.CTR)
		addFloat(row, p.CPC)
		addFloat(row, p.CPM)
		addFloat(row, p.ROAS)
		addFloat(row, p.Target)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// Write saves the report to path.
func (r *Report) Write(path string) error {
	return WriteXLSX(path, r.Campaigns, r.Daily)
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		addString(row, c)
	}
}

func addCounters(row *xlsx.Row, c model.Counters) {
	addFloat(row, c.Spend)
	row.AddCell().SetInt64(c.Impressions)
	row.AddCell().SetInt64(c.Clicks)
	row.AddCell().SetInt64(c.Conversions)
	addFloat(row, c.ConversionValue)
}

func addString(row *xlsx.Row, s string) {
	row.AddCell().SetString(s)
}

func addFloat(row *xlsx.Row, v float64) {
	row.AddCell().SetFloatWithFormat(v, "0.00")
}
