package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 业务指标
	PracticeAnswers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_answers_total",
			Help: "Practice answers by grading result",
		},
		[]string{"result"},
	)

	ExamSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_item_submissions_total",
			Help: "Exam item submissions by grading result",
		},
		[]string{"result"},
	)

	ExamAttemptsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_attempts_finished_total",
			Help: "Exam attempts finished by final status",
		},
		[]string{"status"},
	)

	TimeoutScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_timeout_scans_total",
			Help: "Timeout scans by trigger",
		},
		[]string{"trigger"},
	)

	TimeoutAutoFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_timeout_auto_finished_total",
			Help: "Attempts finished by the timeout sweeper",
		},
	)

	GradingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manual_grading_transitions_total",
			Help: "Manual grading task transitions by target status",
		},
		[]string{"to"},
	)

	ReviewTasksGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_daily_tasks_generated_total",
			Help: "Review daily tasks inserted by generation runs",
		},
	)

	ReviewGenerationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_generation_conflicts_total",
			Help: "Review generation runs that gave up after repeated conflicts",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(
		PracticeAnswers,
		ExamSubmissions,
		ExamAttemptsFinished,
		TimeoutScans,
		TimeoutAutoFinished,
		GradingTransitions,
		ReviewTasksGenerated,
		ReviewGenerationConflicts,
	)
}

// ResultLabel 判分结果标签
func ResultLabel(isCorrect *bool) string {
	switch {
	case isCorrect == nil:
		return "manual"
	case *isCorrect:
		return "correct"
	default:
		return "wrong"
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
