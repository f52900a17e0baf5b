package config

// StrategyConfig defines per-role model selections and fallbacks.
type StrategyConfig struct {
	DefaultModel    string            `mapstructure:"default_model"`
	PerceptionModel string            `mapstructure:"perception_model"`
	PlannerModel    string            `mapstructure:"planner_model"`
	Overrides       map[string]string `mapstructure:"overrides"`     // role -> model id
	Fallbacks       []string          `mapstructure:"fallbacks"`     // ordered fallback model ids
	MaxExpensive    int               `mapstructure:"max_expensive"` // expensive model calls per turn (0=unlimited)
}

// ModelIDs returns every model id the strategy references.
func (s StrategyConfig) ModelIDs() []string {
	ids := []string{s.DefaultModel, s.PerceptionModel, s.PlannerModel}
	for _, id := range s.Overrides {
		ids = append(ids, id)
	}
	return append(ids, s.Fallbacks...)
}
