package aggregate

import "github.com/cityforge/enviro-intel/internal/model"

// RecommendationRulesVersion identifies the shipped rule table. Bump it
// whenever a rule is added, removed, or rephrased so downstream consumers can
// pin against a known set.
const RecommendationRulesVersion = "2025-08"

// ruleInput is the snapshot a recommendation rule evaluates against.
type ruleInput struct {
	Health  float64
	Risks   map[string]model.RiskOutput
	Anomaly *model.AnomalySignal
	Monsoon bool
}

func (in ruleInput) riskLevel(domainName string) int {
	if out, ok := in.Risks[domainName]; ok {
		return out.Level
	}
	return 0
}

func (in ruleInput) maxRiskLevel() int {
	maxLevel := 0
	for _, out := range in.Risks {
		if out.Level > maxLevel {
			maxLevel = out.Level
		}
	}
	return maxLevel
}

func (in ruleInput) anomalyFlagged() bool {
	return in.Anomaly != nil && in.Anomaly.Flagged
}

type rule struct {
	id      string
	when    func(ruleInput) bool
	message string
}

// recommendationRules is the static, versioned threshold table. Rules are
// evaluated in order and every matching rule contributes its message.
var recommendationRules = []rule{
	{
		id: "air-hazard-stay-indoors",
		when: func(in ruleInput) bool {
			return in.Health < 50 && in.riskLevel(model.RiskAir) >= 4
		},
		message: "Air quality is hazardous and overall environmental health is poor; avoid outdoor activity until conditions improve.",
	},
	{
		id: "air-sensitive-groups",
		when: func(in ruleInput) bool {
			return in.riskLevel(model.RiskAir) == 3
		},
		message: "Air quality is degraded; sensitive groups should limit prolonged outdoor exertion.",
	},
	{
		id: "heat-extreme",
		when: func(in ruleInput) bool {
			return in.riskLevel(model.RiskHeat) >= 4
		},
		message: "Severe heat stress expected; stay hydrated and avoid midday sun exposure.",
	},
	{
		id: "flood-avoid-low-lying",
		when: func(in ruleInput) bool {
			return in.riskLevel(model.RiskFlood) >= 4
		},
		message: "High flood potential; avoid low-lying areas and underpasses.",
	},
	{
		id: "flood-monsoon-waterlogging",
		when: func(in ruleInput) bool {
			return in.Monsoon && in.riskLevel(model.RiskFlood) == 3
		},
		message: "Monsoon conditions with elevated flood risk; expect localized waterlogging during heavy spells.",
	},
	{
		id: "anomaly-verify-feeds",
		when: func(in ruleInput) bool {
			return in.anomalyFlagged() && in.Anomaly.Severity == "High"
		},
		message: "Unusual environmental readings detected; verify sensor feeds before acting on forecasts.",
	},
	{
		id: "conditions-favorable",
		when: func(in ruleInput) bool {
			return in.Health >= 80 && len(in.Risks) > 0 && in.maxRiskLevel() <= 2 && !in.anomalyFlagged()
		},
		message: "Conditions are favorable for outdoor activity.",
	},
}

// recommendations evaluates the rule table and returns the matched messages
// in table order.
func recommendations(in ruleInput) []string {
	out := []string{}
	for _, r := range recommendationRules {
		if r.when(in) {
			out = append(out, r.message)
		}
	}
	return out
}
