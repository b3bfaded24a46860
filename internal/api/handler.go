package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"trolley-pm/internal/service"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *service.Engine
	db      *gorm.DB
	webpush *webpush.Options
}

// NewHandler creates a new API handler. webpushOptions may be nil when push
// is disabled.
func NewHandler(engine *service.Engine, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		engine:  engine,
		db:      engine.Store().DB(),
		webpush: webpushOptions,
	}
}
