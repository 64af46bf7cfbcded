package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "cycles_total",
		Help:      "Total poll cycles executed.",
	})

	SchedulerTasksClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "tasks_claimed_total",
		Help:      "Total task records claimed, labelled by stage.",
	}, []string{"stage"})

	SchedulerClaimLost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "claims_lost_total",
		Help:      "Claim attempts that lost the race to a concurrent cycle.",
	})

	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of one work-unit invocation.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	StagesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "stages_inflight",
		Help:      "Work-unit invocations currently executing.",
	})

	StageRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "retries_total",
		Help:      "Failed attempts rescheduled with backoff, labelled by stage.",
	}, []string{"stage"})

	StageEscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "escalations_total",
		Help:      "Task records escalated to needs_review, labelled by stage and error kind.",
	}, []string{"stage", "kind"})

	ContentPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "scheduler",
		Name:      "content_published_total",
		Help:      "Content pieces that completed the full pipeline.",
	})

	// ─── Calendar ────────────────────────────────────────────────────────────────

	CalendarPiecesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "calendar",
		Name:      "pieces_created_total",
		Help:      "Content pieces created by due publish schedules.",
	})

	// ─── Control API ─────────────────────────────────────────────────────────────

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Control API requests, labelled by route and status class.",
	}, []string{"route", "status"})

	// ─── Reviews ─────────────────────────────────────────────────────────────────

	ReviewDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentgen",
		Subsystem: "reviews",
		Name:      "decisions_total",
		Help:      "Human review decisions applied, labelled by action.",
	}, []string{"action"})
)
