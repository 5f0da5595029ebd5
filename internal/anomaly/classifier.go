// Package anomaly tags campaign rows with threshold-crossing alerts.
package anomaly

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ads-insights/internal/model"
)

// Classifier evaluates rows against a fixed rule table. It holds no state
// beyond the rules, so identical input always yields identical alerts.
type Classifier struct {
	rules   []Rule
	printer *message.Printer
}

// New builds a Classifier. A nil rule set uses DefaultRules.
func New(rules []Rule) (*Classifier, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return &Classifier{
		rules:   rules,
		printer: message.NewPrinter(language.English),
	}, nil
}

// Rules returns a copy of the active rule table.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns every alert fired by rows, in input order then rule order.
// IDs and timestamps are left for the persistence layer to assign.
func (c *Classifier) Classify(rows []model.InsightRow) []model.Alert {
	var alerts []model.Alert
	for _, row := range rows {
		for _, rule := range c.rules {
			if rule.Disabled {
				continue
			}
			v, _ := metricValue(rule.Metric, row)
			if !rule.fires(v) {
				continue
			}
			alerts = append(alerts, model.Alert{
				CampaignID: row.CampaignID,
				Type:       rule.Type,
				Severity:   rule.Severity,
				Message:    c.message(rule, row, v),
				Threshold:  rule.Threshold,
				Observed:   v,
			})
		}
	}
	return alerts
}

func (c *Classifier) message(rule Rule, row model.InsightRow, v float64) string {
	name := row.CampaignName
	if name == "" {
		name = row.CampaignID
	}
	switch rule.Type {
	case model.AlertROASDrop:
		return c.printer.Sprintf("ROAS dropped to %.2f (threshold %.2f) for campaign %s", v, rule.Threshold, name)
	case model.AlertCPASpike:
		return c.printer.Sprintf("CPA increased to $%.2f (threshold $%.2f) for campaign %s", v, rule.Threshold, name)
	case model.AlertCreativeFatigue:
		return c.printer.Sprintf("High frequency (%.1f) detected for campaign %s", v, name)
	default:
		return c.printer.Sprintf("%s: %s at %.2f crossed %.2f for campaign %s", rule.Type, rule.Metric, v, rule.Threshold, name)
	}
}
