package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cronExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_cron_executions_total",
		Help: "Total cron job executions by job name and outcome.",
	}, []string{"job", "outcome"})
	heartbeatTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_heartbeat_ticks_total",
		Help: "Total heartbeat ticks by agent and outcome.",
	}, []string{"agent", "outcome"})
	taskExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_task_executions_total",
		Help: "Total queued-task executions by outcome.",
	}, []string{"outcome"})
)
