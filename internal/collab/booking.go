package collab

import (
	"context"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// BookingClient reads order summaries from the booking record service.
type BookingClient struct {
	base
	log logrus.FieldLogger
}

func NewBookingClient(cfg Config, log logrus.FieldLogger) *BookingClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BookingClient{base: newBase("booking", cfg), log: log}
}

// Summary fetches the order summary of bookingID.
func (c *BookingClient) Summary(ctx context.Context, bookingID string) (model.OrderSummary, error) {
	var out model.OrderSummary
	if err := c.getJSON(ctx, "/v1/bookings/"+url.PathEscape(bookingID)+"/summary", &out); err != nil {
		return model.OrderSummary{}, err
	}
	if out.BookingID == "" {
		out.BookingID = bookingID
	}
	return out, nil
}

// RefreshOrderSummary pulls the updated totals after a referral was
// applied.  The engine folds the result into its pricing state.
func (c *BookingClient) RefreshOrderSummary(ctx context.Context, bookingID string) (model.OrderSummary, error) {
	s, err := c.Summary(ctx, bookingID)
	if err != nil {
		return model.OrderSummary{}, err
	}
	c.log.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"base_minor":     s.BasePriceMinor,
		"fee_minor":      s.StudentFeeMinor,
		"referral_minor": s.ReferralAppliedMinor,
	}).Debug("order summary refreshed")
	return s, nil
}
