package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/checkout-credits/internal/handler"
	"github.com/iliyamo/checkout-credits/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and the metrics endpoint when one is given.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc, metrics echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
	if metrics != nil {
		e.GET("/metrics", metrics)
	}
}

// RegisterCheckout mounts the checkout session API under
// /v1/checkout/:booking_id.  Every route requires a bearer token; routes
// that change a pricing input also pass through limiter.
func RegisterCheckout(e *echo.Echo, h *handler.CheckoutHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/checkout/:booking_id", middleware.JWTAuth(jwtSecret))

	g.POST("/init", h.Init)
	g.GET("", h.Get)
	g.GET("/charge", h.Charge)
	g.DELETE("", h.Clear)
	g.DELETE("/notice", h.DismissNotice)

	// Pricing inputs.
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g.PUT("/credits", h.SetCredits, limiter)
	g.POST("/credits/off", h.CreditsOff, limiter)
	g.POST("/credits/on", h.CreditsOn, limiter)
	g.POST("/referral", h.ApplyReferral, limiter)
	g.POST("/promo", h.ActivatePromo, limiter)
	g.DELETE("/promo", h.DeactivatePromo, limiter)
	g.PUT("/modality", h.ChangeModality, limiter)
}
