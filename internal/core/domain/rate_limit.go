// Package domain concentra entidades e estruturas centrais do substrato de
// confiabilidade: decisões de rate limit, planos, medição de uso e fila de jobs.
package domain

import "time"

// Tier representa o plano de assinatura de um usuário.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierAgentGFull Tier = "agent_g_full"
)

// Tiers lista os planos em ordem crescente de privilégio.
func Tiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPremium, TierAgentGFull}
}

// RouteGroup agrupa rotas que compartilham a mesma política de limite.
type RouteGroup string

const (
	RouteWebhooks RouteGroup = "webhooks"
	RouteMessages RouteGroup = "messages"
	RouteAI       RouteGroup = "ai"
	RouteMedia    RouteGroup = "media"
	RouteAccount  RouteGroup = "account"
)

// RouteGroups lista os grupos de rota conhecidos.
func RouteGroups() []RouteGroup {
	return []RouteGroup{RouteWebhooks, RouteMessages, RouteAI, RouteMedia, RouteAccount}
}

// RateDecision é o resultado de uma verificação de janela fixa.
type RateDecision struct {
	Allowed    bool
	Current    int64
	RetryAfter time.Duration
	// UsedRemote indica se a decisão veio do backend remoto ou do fallback local.
	UsedRemote bool
}

// TierDecision estende RateDecision com os campos necessários para os
// cabeçalhos padrão de rate limit.
type TierDecision struct {
	RateDecision
	Limit      int64
	Remaining  int64
	ResetAfter time.Duration
}

// ClaimResult é o resultado de uma reivindicação de idempotência.
type ClaimResult struct {
	// Accepted é verdadeiro apenas para a chamada que criou a chave.
	Accepted   bool
	UsedRemote bool
}
