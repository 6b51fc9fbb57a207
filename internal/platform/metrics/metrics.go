// Package metrics exposes Prometheus counters for the planner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pai_planner"

// Assignment outcomes.
const (
	OutcomeAssigned = "assigned"
	OutcomeSkipped  = "skipped"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// Completion outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeNoop      = "noop"
)

// Metrics groups the planner counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry     *prometheus.Registry
	assignments  *prometheus.CounterVec
	tasksCreated *prometheus.CounterVec
	completions  *prometheus.CounterVec
	tagFallbacks *prometheus.CounterVec
}

// New registers the planner counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Weekly assignment runs by outcome.",
		}, []string{"outcome"}),
		tasksCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks persisted by type.",
		}, []string{"type"}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completions_total",
			Help:      "Task completion requests by type and outcome.",
		}, []string{"type", "outcome"}),
		tagFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_fallbacks_total",
			Help:      "Quizzes built with placeholder tags because the tag source failed.",
		}, []string{"facet"}),
	}
}

func (m *Metrics) Assignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TaskCreated(taskType string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(taskType).Inc()
}

func (m *Metrics) Completion(taskType, outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(taskType, outcome).Inc()
}

func (m *Metrics) TagFallback(facet string) {
	if m == nil {
		return
	}
	m.tagFallbacks.WithLabelValues(facet).Inc()
}

// Registry returns the underlying registry, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
