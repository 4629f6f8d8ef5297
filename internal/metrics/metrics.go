// Package metrics records run statistics in Prometheus collectors and
// writes them as a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/graphjob/internal/step"
)

const namespace = "graphjob"

// Recorder implements executor.StepRecorder and jobstate.Observer. A nil
// *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stepsTotal     *prometheus.CounterVec   // by status
	stepDuration   *prometheus.HistogramVec // by step
	objectsAdded   *prometheus.CounterVec   // by step and collection
	objectsFlushed *prometheus.CounterVec   // by collection
}

// New creates a Recorder with its own registry.
func New() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "steps_total",
			Help:      "Steps that reached a terminal status",
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "step_duration_seconds",
			Help:      "Handler duration per step",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"step"}),
		objectsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobstate",
			Name:      "objects_added_total",
			Help:      "Graph objects accepted by JobState",
		}, []string{"step", "collection"}),
		objectsFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "objects_flushed_total",
			Help:      "Graph objects moved from the buffer to storage",
		}, []string{"collection"}),
	}

	for _, c := range []prometheus.Collector{r.stepsTotal, r.stepDuration, r.objectsAdded, r.objectsFlushed} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) StepFinished(stepID string, status step.Status, d time.Duration) {
	if r == nil {
		return
	}
	r.stepsTotal.WithLabelValues(string(status)).Inc()
	if status != step.StatusDisabled {
		r.stepDuration.WithLabelValues(stepID).Observe(d.Seconds())
	}
}

func (r *Recorder) ObjectsAdded(stepID, collection string, n int) {
	if r == nil {
		return
	}
	r.objectsAdded.WithLabelValues(stepID, collection).Add(float64(n))
}

func (r *Recorder) ObjectsFlushed(collection string, n int) {
	if r == nil {
		return
	}
	r.objectsFlushed.WithLabelValues(collection).Add(float64(n))
}

// WriteTextfile writes every collected metric to path in the Prometheus
// text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
