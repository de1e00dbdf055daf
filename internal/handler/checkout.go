package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/checkout"
	"github.com/iliyamo/checkout-credits/internal/collab"
	"github.com/iliyamo/checkout-credits/internal/middleware"
	"github.com/iliyamo/checkout-credits/internal/service"
)

// CheckoutHandler exposes one checkout session per (user, booking draft).
// Every mutating call returns the snapshot right after the input was
// recorded; the negotiated price arrives asynchronously and is read back
// with GET.
type CheckoutHandler struct {
	Sessions *service.Sessions
	Log      logrus.FieldLogger
}

func NewCheckoutHandler(sessions *service.Sessions, log logrus.FieldLogger) *CheckoutHandler {
	if sessions == nil {
		panic("nil sessions passed to NewCheckoutHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CheckoutHandler{Sessions: sessions, Log: log}
}

type initRequest struct {
	BasePriceMinor  int64  `json:"basePriceMinor"`
	StudentFeeMinor int64  `json:"studentFeeMinor"`
	Modality        string `json:"modality"`
}

type amountRequest struct {
	AmountMinor *int64 `json:"amountMinor"`
}

// Init handles POST /v1/checkout/:booking_id/init.  Calling it again
// behaves like a page reload: the session restarts from the persisted
// decision.
func (h *CheckoutHandler) Init(c echo.Context) error {
	var body initRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.BasePriceMinor < 0 || body.StudentFeeMinor < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amounts must not be negative"})
	}
	id := service.Identity{UserID: middleware.UserID(c), Token: middleware.Token(c)}
	snap, err := h.Sessions.Open(c.Request().Context(), id, c.Param("booking_id"), service.OpenRequest{
		BasePriceMinor:  body.BasePriceMinor,
		StudentFeeMinor: body.StudentFeeMinor,
		Modality:        body.Modality,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// Get handles GET /v1/checkout/:booking_id.
func (h *CheckoutHandler) Get(c echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, e.Snapshot())
}

// SetCredits handles PUT /v1/checkout/:booking_id/credits.
func (h *CheckoutHandler) SetCredits(c echo.Context) error {
	var body amountRequest
	if err := c.Bind(&body); err != nil || body.AmountMinor == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amountMinor is required"})
	}
	return h.apply(c, func(e *checkout.Engine) error { return e.SetDesiredAmount(*body.AmountMinor) })
}

func (h *CheckoutHandler) CreditsOff(c echo.Context) error {
	return h.apply(c, (*checkout.Engine).ToggleOff)
}

func (h *CheckoutHandler) CreditsOn(c echo.Context) error {
	return h.apply(c, (*checkout.Engine).ToggleOn)
}

// ApplyReferral handles POST /v1/checkout/:booking_id/referral, the
// referral widget's applied event.
func (h *CheckoutHandler) ApplyReferral(c echo.Context) error {
	var body amountRequest
	if err := c.Bind(&body); err != nil || body.AmountMinor == nil || *body.AmountMinor < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amountMinor must be a non-negative integer"})
	}
	return h.apply(c, func(e *checkout.Engine) error { return e.ApplyReferral(*body.AmountMinor) })
}

// ActivatePromo handles POST /v1/checkout/:booking_id/promo.  It answers
// 409 while referral credit is applied.
func (h *CheckoutHandler) ActivatePromo(c echo.Context) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return h.apply(c, func(e *checkout.Engine) error { return e.ActivatePromo(body.Code) })
}

func (h *CheckoutHandler) DeactivatePromo(c echo.Context) error {
	return h.apply(c, (*checkout.Engine).DeactivatePromo)
}

// ChangeModality handles PUT /v1/checkout/:booking_id/modality.
func (h *CheckoutHandler) ChangeModality(c echo.Context) error {
	var body struct {
		Modality string `json:"modality"`
	}
	if err := c.Bind(&body); err != nil || body.Modality == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "modality is required"})
	}
	return h.apply(c, func(e *checkout.Engine) error { return e.ChangeModality(body.Modality) })
}

func (h *CheckoutHandler) DismissNotice(c echo.Context) error {
	return h.apply(c, (*checkout.Engine).DismissNotice)
}

// Charge handles GET /v1/checkout/:booking_id/charge?card_ref=...  It
// returns the amounts for the charge collaborator once the price is
// confirmed, and 409 while it is still an estimate or being negotiated.
func (h *CheckoutHandler) Charge(c echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err)
	}
	amounts, err := e.ChargeAmounts(c.QueryParam("card_ref"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, amounts)
}

// Clear handles DELETE /v1/checkout/:booking_id.  It removes the persisted
// decision and closes the session.
func (h *CheckoutHandler) Clear(c echo.Context) error {
	if err := h.Sessions.Clear(c.Request().Context(), middleware.UserID(c), c.Param("booking_id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CheckoutHandler) engine(c echo.Context) (*checkout.Engine, error) {
	return h.Sessions.Engine(middleware.UserID(c), c.Param("booking_id"))
}

// apply runs one input against the session and answers 202 with the
// snapshot taken right after it was recorded.
func (h *CheckoutHandler) apply(c echo.Context, input func(*checkout.Engine) error) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := input(e); err != nil {
		if errors.Is(err, checkout.ErrPromoBlocked) {
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "snapshot": e.Snapshot()})
		}
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, e.Snapshot())
}

func (h *CheckoutHandler) writeError(c echo.Context, err error) error {
	var se *collab.StatusError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, checkout.ErrNotInitialized):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "checkout session not found"})
	case errors.Is(err, checkout.ErrClosed):
		return c.JSON(http.StatusGone, echo.Map{"error": "checkout session closed"})
	case errors.Is(err, checkout.ErrMissingBookingID), errors.Is(err, checkout.ErrEmptyPromoCode):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, checkout.ErrPromoBlocked), errors.Is(err, checkout.ErrPriceNotConfirmed):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.As(err, &se):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": se.Service + " service unavailable"})
	default:
		h.Log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("checkout request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
