package anomaly

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ads-insights/internal/model"
)

// Metric names a per-row value a rule can test.
type Metric string

const (
	MetricROAS      Metric = "roas"
	MetricCPA       Metric = "cpa"
	MetricCTR       Metric = "ctr"
	MetricCPC       Metric = "cpc"
	MetricCPM       Metric = "cpm"
	MetricFrequency Metric = "frequency"
)

// Op is the comparison a rule applies.
type Op string

const (
	OpLessThan    Op = "lt"
	OpGreaterThan Op = "gt"
)

// Rule fires when Metric compared with Threshold by Op holds.
type Rule struct {
	Type      model.AlertType `yaml:"type"`
	Metric    Metric          `yaml:"metric"`
	Op        Op              `yaml:"op"`
	Threshold float64         `yaml:"threshold"`
	Severity  model.Severity  `yaml:"severity"`
	Disabled  bool            `yaml:"disabled"`
}

// DefaultRules is the fixed rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Type: model.AlertROASDrop, Metric: MetricROAS, Op: OpLessThan, Threshold: 2.0, Severity: model.SeverityHigh},
		{Type: model.AlertCPASpike, Metric: MetricCPA, Op: OpGreaterThan, Threshold: 40, Severity: model.SeverityMedium},
		{Type: model.AlertCreativeFatigue, Metric: MetricFrequency, Op: OpGreaterThan, Threshold: 2.5, Severity: model.SeverityMedium},
	}
}

// Validate checks that the rule references known enums.
func (r Rule) Validate() error {
	if !r.Type.Valid() {
		return eris.Errorf("anomaly: unknown alert type %q", r.Type)
	}
	if !r.Severity.Valid() {
		return eris.Errorf("anomaly: rule %s: unknown severity %q", r.Type, r.Severity)
	}
	switch r.Op {
	case OpLessThan, OpGreaterThan:
	default:
		return eris.Errorf("anomaly: rule %s: unknown op %q", r.Type, r.Op)
	}
	if _, ok := metricValue(r.Metric, model.InsightRow{}); !ok {
		return eris.Errorf("anomaly: rule %s: unknown metric %q", r.Type, r.Metric)
	}
	// Persisted alerts must keep observed on the firing side of the threshold.
	switch r.Type {
	case model.AlertROASDrop:
		if r.Op != OpLessThan {
			return eris.Errorf("anomaly: rule %s must use %q", r.Type, OpLessThan)
		}
	case model.AlertCPASpike, model.AlertCreativeFatigue:
		if r.Op != OpGreaterThan {
			return eris.Errorf("anomaly: rule %s must use %q", r.Type, OpGreaterThan)
		}
	}
	return nil
}

func (r Rule) fires(v float64) bool {
	if r.Op == OpLessThan {
		return v < r.Threshold
	}
	return v > r.Threshold
}

func metricValue(m Metric, row model.InsightRow) (float64, bool) {
	switch m {
	case MetricROAS:
		return row.ROAS, true
	case MetricCPA:
		return row.CPA, true
	case MetricCTR:
		return row.CTR, true
	case MetricCPC:
		return row.CPC, true
	case MetricCPM:
		return row.CPM, true
	case MetricFrequency:
		return row.Frequency, true
	}
	return 0, false
}

// LoadRules reads a rule table from a YAML file with a top-level "anomaly"
// key. Rules present in the file replace the default rule of the same type;
// defaults not mentioned are kept.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "anomaly: read rules %s", path)
	}

	var wrapper struct {
		Anomaly struct {
			Rules []Rule `yaml:"rules"`
		} `yaml:"anomaly"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "anomaly: parse rules")
	}

	rules := DefaultRules()
	for _, override := range wrapper.Anomaly.Rules {
		if err := override.Validate(); err != nil {
			return nil, err
		}
		replaced := false
		for i := range rules {
			if rules[i].Type == override.Type {
				rules[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			rules = append(rules, override)
		}
	}
	return rules, nil
}
