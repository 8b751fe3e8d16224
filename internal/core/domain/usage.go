package domain

import "time"

// Metric identifica um contador de uso cobrado por plano.
type Metric string

const (
	MetricMessages     Metric = "messages"
	MetricAICalls      Metric = "ai_calls"
	MetricMediaUploads Metric = "media_uploads"
)

// Metrics lista as métricas de uso conhecidas.
func Metrics() []Metric {
	return []Metric{MetricMessages, MetricAICalls, MetricMediaUploads}
}

// Period define a granularidade de um contador de uso.
type Period string

const (
	PeriodMonth Period = "month"
	PeriodDay   Period = "day"
)

// MonthKey devolve a chave mensal no formato 2006-01.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayKey devolve a chave diária no formato 2006-01-02.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// HourKey devolve a chave horária usada pelos contadores de observabilidade.
func HourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

// UsageTotals agrupa os dois contadores paralelos de uma métrica.
type UsageTotals struct {
	Month int64 `json:"month"`
	Day   int64 `json:"day"`
}

// UsageSnapshot é a leitura de todos os contadores de um usuário.
type UsageSnapshot struct {
	UserID string                 `json:"user_id"`
	Totals map[Metric]UsageTotals `json:"totals"`
}
