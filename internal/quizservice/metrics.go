package quizservice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	outcomeGraded    = "graded"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

type metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	scores      prometheus.Histogram
}

// newMetrics builds the collectors of one handler on a private registry.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnquiz_submissions_total",
				Help: "Total number of quiz submissions by outcome",
			},
			[]string{"outcome"},
		),
		scores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "learnquiz_submission_score",
				Help:    "Scores of graded submissions, in percent",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
	}
	m.registry.MustRegister(
		m.submissions,
		m.scores,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
