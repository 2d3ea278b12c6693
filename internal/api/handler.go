package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"machine-health-backend/internal/alert"
	"machine-health-backend/internal/store"
	"machine-health-backend/internal/telemetry"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	telemetry *telemetry.Service
	alerts    *alert.Manager
	webpush   *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, svc *telemetry.Service, alerts *alert.Manager, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		telemetry: svc,
		alerts:    alerts,
		webpush:   webpushOptions,
	}
}
