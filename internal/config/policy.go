package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vklemos/alicerce/internal/core/domain"
)

type policyFile struct {
	Routes  map[string]routePolicyFile  `yaml:"routes"`
	Metrics map[string]metricPolicyFile `yaml:"metrics"`
}

type routePolicyFile struct {
	WindowSeconds int              `yaml:"window_seconds"`
	Limits        map[string]int64 `yaml:"limits"`
}

type metricPolicyFile struct {
	Period string           `yaml:"period"`
	Limits map[string]int64 `yaml:"limits"`
}

// LoadPolicy lê a tabela de políticas do arquivo YAML indicado; com o caminho
// vazio usa a tabela embutida. A tabela resultante é validada (todos os grupos
// e planos presentes, limites crescentes por plano).
func LoadPolicy(path string) (domain.PolicyTable, error) {
	if path == "" {
		policy := DefaultPolicy()
		if err := policy.Validate(); err != nil {
			return domain.PolicyTable{}, err
		}
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PolicyTable{}, fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.PolicyTable{}, fmt.Errorf("parse policy file: %w", err)
	}

	policy := domain.PolicyTable{
		Routes:  make(map[domain.RouteGroup]domain.RouteLimitPolicy, len(file.Routes)),
		Metrics: make(map[domain.Metric]domain.MetricPolicy, len(file.Metrics)),
	}

	for group, rp := range file.Routes {
		perTier := make(map[domain.Tier]int64, len(rp.Limits))
		for tier, limit := range rp.Limits {
			perTier[domain.Tier(tier)] = limit
		}
		policy.Routes[domain.RouteGroup(group)] = domain.RouteLimitPolicy{
			Window:  time.Duration(rp.WindowSeconds) * time.Second,
			PerTier: perTier,
		}
	}

	for metric, mp := range file.Metrics {
		perTier := make(map[domain.Tier]int64, len(mp.Limits))
		for tier, limit := range mp.Limits {
			perTier[domain.Tier(tier)] = limit
		}
		policy.Metrics[domain.Metric(metric)] = domain.MetricPolicy{
			Period:  domain.Period(mp.Period),
			PerTier: perTier,
		}
	}

	if err := policy.Validate(); err != nil {
		return domain.PolicyTable{}, err
	}
	return policy, nil
}

// DefaultPolicy é a tabela embutida usada quando nenhum arquivo é fornecido.
// Limites por minuto nos grupos de rota; mensagens são medidas no mês,
// chamadas de IA e uploads de mídia no dia.
func DefaultPolicy() domain.PolicyTable {
	return domain.PolicyTable{
		Routes: map[domain.RouteGroup]domain.RouteLimitPolicy{
			domain.RouteWebhooks: {
				Window: time.Minute,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       30,
					domain.TierBasic:      120,
					domain.TierPremium:    300,
					domain.TierAgentGFull: 900,
				},
			},
			domain.RouteMessages: {
				Window: time.Minute,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       20,
					domain.TierBasic:      60,
					domain.TierPremium:    180,
					domain.TierAgentGFull: 600,
				},
			},
			domain.RouteAI: {
				Window: time.Minute,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       5,
					domain.TierBasic:      20,
					domain.TierPremium:    60,
					domain.TierAgentGFull: 240,
				},
			},
			domain.RouteMedia: {
				Window: time.Minute,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       10,
					domain.TierBasic:      30,
					domain.TierPremium:    90,
					domain.TierAgentGFull: 300,
				},
			},
			domain.RouteAccount: {
				Window: time.Minute,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       15,
					domain.TierBasic:      45,
					domain.TierPremium:    120,
					domain.TierAgentGFull: 360,
				},
			},
		},
		Metrics: map[domain.Metric]domain.MetricPolicy{
			domain.MetricMessages: {
				Period: domain.PeriodMonth,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       1000,
					domain.TierBasic:      10000,
					domain.TierPremium:    50000,
					domain.TierAgentGFull: 250000,
				},
			},
			domain.MetricAICalls: {
				Period: domain.PeriodDay,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       25,
					domain.TierBasic:      200,
					domain.TierPremium:    1000,
					domain.TierAgentGFull: 5000,
				},
			},
			domain.MetricMediaUploads: {
				Period: domain.PeriodDay,
				PerTier: map[domain.Tier]int64{
					domain.TierFree:       20,
					domain.TierBasic:      100,
					domain.TierPremium:    500,
					domain.TierAgentGFull: 2000,
				},
			},
		},
	}
}
