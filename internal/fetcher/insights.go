package fetcher

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/model"
)

// Column names accepted in an insights CSV header. Matching ignores case and
// surrounding space.
const (
	ColCampaignID      = "campaign_id"
	ColCampaignName    = "campaign_name"
	ColDate            = "date"
	ColSpend           = "spend"
	ColImpressions     = "impressions"
	ColClicks          = "clicks"
	ColConversions     = "conversions"
	ColRevenue         = "revenue"
	ColConversionValue = "conversion_value" // alias of revenue
	ColFrequency       = "frequency"
	ColReach           = "reach"
	ColQualityRanking  = "quality_ranking"
)

var requiredColumns = []string{
	ColCampaignID, ColCampaignName, ColDate,
	ColSpend, ColImpressions, ColClicks, ColConversions, ColRevenue,
}

// ReadInsightsCSV parses one row per campaign per day. Ratios are not set;
// callers derive them.
func ReadInsightsCSV(ctx context.Context, r io.Reader) ([]model.InsightRow, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true})

	var (
		cols map[string]int
		rows []model.InsightRow
		line = 1
	)
	for rec := range rowCh {
		line++
		if cols == nil {
			var err error
			if cols, err = columnIndex(<-headerCh); err != nil {
				drain(rowCh)
				return nil, err
			}
		}
		row, err := parseInsight(rec, cols)
		if err != nil {
			drain(rowCh)
			return nil, eris.Wrapf(err, "csv: line %d", line)
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if cols == nil {
		select {
		case h := <-headerCh:
			if _, err := columnIndex(h); err != nil {
				return nil, err
			}
		default:
			return nil, eris.New("csv: missing header")
		}
	}
	return rows, nil
}

func drain(ch <-chan []string) {
	for range ch { //nolint:revive
	}
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[ColRevenue]; !ok {
		if i, ok := cols[ColConversionValue]; ok {
			cols[ColRevenue] = i
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("csv: missing columns %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseInsight(rec []string, cols map[string]int) (model.InsightRow, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	row := model.InsightRow{
		CampaignID:     get(ColCampaignID),
		CampaignName:   get(ColCampaignName),
		QualityRanking: model.QualityRanking(strings.ToLower(get(ColQualityRanking))),
	}
	if row.CampaignID == "" {
		return row, eris.New("campaign_id is empty")
	}
	if !row.QualityRanking.Valid() {
		return row, eris.Errorf("unknown quality_ranking %q", row.QualityRanking)
	}

	d, err := time.Parse(model.DateLayout, get(ColDate))
	if err != nil {
		return row, eris.Errorf("invalid date %q", get(ColDate))
	}
	row.Date = d

	floats := []struct {
		col      string
		dst      *float64
		required bool
	}{
		{ColSpend, &row.Spend, true},
		{ColRevenue, &row.ConversionValue, true},
		{ColFrequency, &row.Frequency, false},
	}
	for _, f := range floats {
		v := get(f.col)
		if v == "" && f.required {
			return row, eris.Errorf("%s is empty", f.col)
		}
		if v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return row, eris.Errorf("invalid %s %q", f.col, v)
			}
			*f.dst = n
		}
	}

	ints := []struct {
		col      string
		dst      *int64
		required bool
	}{
		{ColImpressions, &row.Impressions, true},
		{ColClicks, &row.Clicks, true},
		{ColConversions, &row.Conversions, true},
		{ColReach, &row.Reach, false},
	}
	for _, f := range ints {
		v := get(f.col)
		if v == "" && f.required {
			return row, eris.Errorf("%s is empty", f.col)
		}
		if v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return row, eris.Errorf("invalid %s %q", f.col, v)
			}
			*f.dst = n
		}
	}
	return row, nil
}

// FileSource serves previously loaded rows through the same interface as the
// Meta client. The account id is ignored.
type FileSource struct {
	rows []model.InsightRow
}

// NewFileSource wraps rows.
func NewFileSource(rows []model.InsightRow) *FileSource {
	return &FileSource{rows: rows}
}

// FetchInsights returns a copy of the rows that fall in r.
func (s *FileSource) FetchInsights(_ context.Context, _ string, r model.DateRange) ([]model.InsightRow, error) {
	var out []model.InsightRow
	for _, row := range s.rows {
		if r.Contains(row.Date) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Span returns the smallest range covering every row, or the zero range when
// rows is empty.
func Span(rows []model.InsightRow) model.DateRange {
	if len(rows) == 0 {
		return model.DateRange{}
	}
	days := make([]time.Time, len(rows))
	for i, r := range rows {
		days[i] = model.Day(r.Date)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return model.DateRange{Start: days[0], End: days[len(days)-1]}
}
