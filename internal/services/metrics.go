package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_logins_total",
		Help: "Successful identity resolutions by provider.",
	}, []string{"provider"})
	profilesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_profiles_created_total",
		Help: "Profiles created on first login by provider.",
	}, []string{"provider"})
	createRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passport_profile_create_races_total",
		Help: "First logins that lost a concurrent create and re-fetched the winner.",
	})
	resolveErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_resolve_errors_total",
		Help: "Identity resolutions that failed on a store error.",
	}, []string{"provider"})
)
