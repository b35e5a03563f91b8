package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

const instrumentationName = "device-session-gate/internal/device/service"

var tracer = otel.Tracer(instrumentationName)

var (
	// loginsTotal counts login outcomes: created, updated, or the error code.
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_logins_total",
		Help: "The total number of device logins by outcome",
	}, []string{"outcome"})

	// loginRetriesTotal counts login attempts restarted after an optimistic-concurrency failure.
	loginRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "device_login_retries_total",
		Help: "The total number of login attempts retried after a concurrent write",
	})

	// sessionsSupersededTotal counts records logged out by logins, by reason.
	sessionsSupersededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_sessions_logged_out_total",
		Help: "The total number of device sessions logged out by other logins",
	}, []string{"reason"})

	// authFailuresTotal counts rejected authentications by error code.
	authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_auth_failures_total",
		Help: "The total number of rejected device authentications",
	}, []string{"code"})
)

func errorCode(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeUnavailable
}
