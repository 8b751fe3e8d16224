package domain

import (
	"fmt"
	"time"
)

// RouteLimitPolicy define o limite de janela fixa de um grupo de rotas.
type RouteLimitPolicy struct {
	Window  time.Duration
	PerTier map[Tier]int64
}

// MetricPolicy define qual período é autoritativo para a métrica e o limite
// de cada plano nesse período.
type MetricPolicy struct {
	Period  Period
	PerTier map[Tier]int64
}

// PolicyTable é a tabela de políticas por plano: limites de requisição por
// grupo de rotas e direitos de uso por métrica.
type PolicyTable struct {
	Routes  map[RouteGroup]RouteLimitPolicy
	Metrics map[Metric]MetricPolicy
}

// RouteLimit devolve o limite e a janela para o par (grupo, plano).
func (p PolicyTable) RouteLimit(group RouteGroup, tier Tier) (limit int64, window time.Duration, ok bool) {
	rp, ok := p.Routes[group]
	if !ok {
		return 0, 0, false
	}
	limit, ok = rp.PerTier[tier]
	return limit, rp.Window, ok
}

// Entitlement devolve o período autoritativo e o limite de uso da métrica para
// o plano. Limite zero significa ilimitado.
func (p PolicyTable) Entitlement(metric Metric, tier Tier) (Period, int64, bool) {
	mp, ok := p.Metrics[metric]
	if !ok {
		return PeriodMonth, 0, false
	}
	return mp.Period, mp.PerTier[tier], true
}

// Validate verifica a consistência da tabela: todos os grupos e planos
// presentes e limites estritamente crescentes por plano.
func (p PolicyTable) Validate() error {
	for _, group := range RouteGroups() {
		rp, ok := p.Routes[group]
		if !ok {
			return fmt.Errorf("policy: missing route group %s", group)
		}
		if rp.Window <= 0 {
			return fmt.Errorf("policy: route group %s must have a positive window", group)
		}
		var prev int64 = -1
		for _, tier := range Tiers() {
			limit, ok := rp.PerTier[tier]
			if !ok {
				return fmt.Errorf("policy: route group %s missing tier %s", group, tier)
			}
			if limit <= prev {
				return fmt.Errorf("policy: route group %s limits must increase with tier (%s)", group, tier)
			}
			prev = limit
		}
	}

	for metric, mp := range p.Metrics {
		if mp.Period != PeriodMonth && mp.Period != PeriodDay {
			return fmt.Errorf("policy: metric %s has invalid period %q", metric, mp.Period)
		}
	}

	return nil
}
