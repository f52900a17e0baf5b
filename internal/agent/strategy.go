package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm"
)

// StrategyEngine routes the perception and planner roles to configured
// models. Once a turn has used its expensive budget, cheap models are
// preferred.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a strategy over reg.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// Route implements llm.Router. The primary is the role's model (override,
// then role setting, then strategy default); the retry target is the next
// registered model among the fallbacks and defaults.
func (s *StrategyEngine) Route(role string, expensiveUsed int) (llm.Routing, error) {
	if s == nil || s.registry == nil {
		return llm.Routing{}, nil
	}
	cands := s.candidates(strings.ToLower(strings.TrimSpace(role)))
	if len(cands) == 0 {
		return llm.Routing{}, fmt.Errorf("no registered model for role %q", role)
	}
	if s.cfg.MaxExpensive > 0 && expensiveUsed >= s.cfg.MaxExpensive {
		sort.SliceStable(cands, func(i, j int) bool {
			return !cands[i].Expensive && cands[j].Expensive
		})
	}

	out := llm.Routing{Primary: cands[0]}
	if len(cands) > 1 {
		fb := cands[1]
		out.Fallback = &fb
	}
	return out, nil
}

// candidates lists the registered models for role in preference order.
func (s *StrategyEngine) candidates(role string) []llm.Candidate {
	ids := []string{firstNonEmpty(s.cfg.Overrides[role], roleModel(role, s.cfg), s.cfg.DefaultModel)}
	ids = append(ids, s.cfg.Fallbacks...)
	ids = append(ids, s.cfg.DefaultModel, s.registry.DefaultModel())

	seen := make(map[string]bool, len(ids))
	var out []llm.Candidate
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p, route, err := s.registry.Resolve(id)
		if err != nil {
			continue
		}
		out = append(out, llm.Candidate{Provider: p, Route: route, Expensive: s.registry.IsExpensive(id)})
	}
	return out
}

func roleModel(role string, cfg config.StrategyConfig) string {
	switch role {
	case llm.RolePerception:
		return cfg.PerceptionModel
	case llm.RolePlanner:
		return cfg.PlannerModel
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
