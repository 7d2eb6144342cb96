package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Сигналы активности по источнику и результату оценки
	SignalsTotal *prometheus.CounterVec

	// Срабатывания по пути детекции (clock, work_status, forced)
	FiredTotal *prometheus.CounterVec

	// Решения пользователя в окне подтверждения
	ResolutionsTotal *prometheus.CounterVec

	// Нефатальные сбои: attachment, persistence, logout
	FailuresTotal *prometheus.CounterVec

	// Сколько трекеров сейчас ведут отсчет
	ActiveTrackers prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SignalsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "presence_signals_total",
			Help: "Activity signals observed by source and outcome.",
		}, []string{"source", "outcome"}),

		FiredTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "presence_inactivity_fired_total",
			Help: "Inactivity events raised by detection path.",
		}, []string{"cause"}),

		ResolutionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "presence_prompt_resolutions_total",
			Help: "Inactivity prompt resolutions by choice.",
		}, []string{"choice"}),

		FailuresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "presence_side_effect_failures_total",
			Help: "Non-fatal failures of signal sources and workflow side effects.",
		}, []string{"kind"}),

		ActiveTrackers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "presence_active_trackers",
			Help: "Number of running session trackers.",
		}),
	}
}
