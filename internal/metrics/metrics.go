package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"phrasehunt/internal/gameerr"
)

var (
	// 1) Request volume
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "requests_total",
		Help: "Total number of API requests received.",
	}, []string{"route", "status"})

	// 2) Concurrency (in flight)
	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_requests",
		Help: "Current number of in-flight requests.",
	})

	// 3) Request latency (handler duration)
	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "End-to-end handler duration for API requests.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"route"})

	// 4) Game activity
	ChallengesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "challenges_created_total",
		Help: "Challenges successfully created.",
	})

	WordPurchasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "word_purchases_total",
		Help: "Word hint purchase attempts by outcome.",
	}, []string{"outcome"})

	GuessesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guesses_total",
		Help: "Guesses by kind (word, sentence) and result.",
	}, []string{"kind", "result"})

	// 5) Credits flowing out of escrow
	PrizesPaidTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prize_credits_paid_total",
		Help: "Credits paid out to first solvers.",
	})

	RefillCreditsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refill_credits_total",
		Help: "Credits granted by the auto-refill policy.",
	})

	// 6) Image generation latency
	ImageGenerationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "image_generation_duration_seconds",
		Help:    "Duration of image generation calls by outcome.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90},
	}, []string{"outcome"})

	// 7) Rate limiting drops
	RateLimitDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_dropped_total",
		Help: "Requests rejected by a rate limiter, by action.",
	}, []string{"action"})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal,
		ActiveRequests,
		RequestDurationSeconds,
		ChallengesCreatedTotal,
		WordPurchasesTotal,
		GuessesTotal,
		PrizesPaidTotal,
		RefillCreditsTotal,
		ImageGenerationSeconds,
		RateLimitDroppedTotal,
	)
}

// Middleware records request count, in-flight gauge and duration per route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ActiveRequests.Inc()
			defer ActiveRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				switch {
				case errors.As(err, &he):
					status = he.Code
				default:
					status = gameerr.CodeOf(err).HTTPStatus()
				}
			}
			route := c.Path()
			RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
			RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
