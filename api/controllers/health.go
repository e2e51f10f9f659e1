package controllers

import (
	"net/http"

	"github.com/mateovillega/bytevault-backend/api/responses"
	"github.com/mateovillega/bytevault-backend/pkg/config"
	"github.com/mateovillega/bytevault-backend/pkg/db"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ByteVault-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the backing stores and reports per-dependency status.
// Any failing dependency flips the response to 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-ByteVault-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if dbP != nil {
			checks["database"] = "ok"
			if err := dbP.Ping(ctx); err != nil {
				checks["database"] = "down"
				healthy = false
				if logg != nil {
					logg.Error(ctx, "database readiness check failed", err)
				}
			}
		}
		if redisP != nil {
			checks["redis"] = "ok"
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = "down"
				healthy = false
				if logg != nil {
					logg.Error(ctx, "redis readiness check failed", err)
				}
			}
		}

		status := "ready"
		httpStatus := http.StatusOK
		if !healthy {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		responses.WriteSuccessStatus(w, httpStatus, map[string]any{"status": status, "checks": checks})
	}
}
