// Package metrics exposes the service's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued counts minted tokens by kind (access, refresh).
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saatphere",
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "Tokens minted, by kind.",
	}, []string{"kind"})

	// Validations counts token validation attempts by outcome. The outcome
	// label carries "ok" or the failure kind (expired, revoked,
	// superseded, device_mismatch, ...).
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saatphere",
		Subsystem: "auth",
		Name:      "token_validations_total",
		Help:      "Token validation attempts, by outcome.",
	}, []string{"outcome"})

	// Logins counts login attempts by result (ok, bad_credentials,
	// disabled, error).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saatphere",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts, by result.",
	}, []string{"result"})

	// Revocations counts explicit token revocations.
	Revocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "saatphere",
		Subsystem: "auth",
		Name:      "revocations_total",
		Help:      "Explicit token revocations.",
	})
)
