package api

import (
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/model"
)

// parseRange reads start and end (YYYY-MM-DD). A missing end is today, a
// missing start is defaultDays before end.
func parseRange(q url.Values, now time.Time, defaultDays int) (model.DateRange, error) {
	start, end := q.Get("start"), q.Get("end")
	if start == "" && end == "" {
		return model.TrailingDays(now, defaultDays), nil
	}

	endDay := model.Day(now)
	if end != "" {
		t, err := time.Parse(model.DateLayout, end)
		if err != nil {
			return model.DateRange{}, eris.Errorf("invalid end date %q", end)
		}
		endDay = t
	}
	startDay := endDay.AddDate(0, 0, -(defaultDays - 1))
	if start != "" {
		t, err := time.Parse(model.DateLayout, start)
		if err != nil {
			return model.DateRange{}, eris.Errorf("invalid start date %q", start)
		}
		startDay = t
	}
	r, err := model.NewDateRange(startDay, endDay)
	if err != nil {
		return model.DateRange{}, eris.New("end date before start date")
	}
	return r, nil
}

func parseInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func parseBool(q url.Values, key string) (*bool, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, eris.Errorf("invalid %s %q", key, v)
	}
	return &b, nil
}
