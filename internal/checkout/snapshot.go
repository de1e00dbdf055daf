package checkout

import (
	"github.com/iliyamo/checkout-credits/internal/model"
	"github.com/iliyamo/checkout-credits/internal/pricing"
)

// Snapshot is the read model handed to the UI.
type Snapshot struct {
	BookingID            string                 `json:"bookingId"`
	View                 model.BookingPriceView `json:"view"`
	Estimated            bool                   `json:"estimated"`
	PaymentMethod        model.PaymentMethod    `json:"paymentMethod"`
	WalletMinor          int64                  `json:"walletMinor"`
	DesiredCreditMinor   int64                  `json:"desiredCreditMinor"`
	MaxCreditMinor       int64                  `json:"maxCreditMinor"`
	CreditLabel          string                 `json:"creditLabel"`
	CreditsOn            bool                   `json:"creditsOn"`
	ReferralAppliedMinor int64                  `json:"referralAppliedMinor"`
	PromoActive          bool                   `json:"promoActive"`
	PromoCode            string                 `json:"promoCode,omitempty"`
	Modality             string                 `json:"modality,omitempty"`
	Notice               *Notice                `json:"notice,omitempty"`
	Pending              bool                   `json:"pending"`
	FloorHint            pricing.FloorHint      `json:"floorHint"`
	FloorWarning         bool                   `json:"floorWarning"`
}

func snapshotOf(s State, advisor *pricing.Advisor) Snapshot {
	hint := advisor.Hint(s.Modality, s.View.SubtotalMinor(), s.Discounts.ReferralAppliedMinor)
	var notice *Notice
	if s.Notice != nil {
		n := *s.Notice
		notice = &n
	}
	view := s.View
	if len(view.LineItems) > 0 {
		view.LineItems = append([]model.LineItem(nil), view.LineItems...)
	}
	return Snapshot{
		BookingID:            s.BookingID,
		View:                 view,
		Estimated:            s.Estimated,
		PaymentMethod:        s.Method,
		WalletMinor:          s.WalletMinor,
		DesiredCreditMinor:   s.DesiredCreditMinor,
		MaxCreditMinor:       s.MaxCreditMinor(),
		CreditLabel:          "Using " + pricing.FormatMinor(s.DesiredCreditMinor),
		CreditsOn:            s.DesiredCreditMinor > 0,
		ReferralAppliedMinor: s.Discounts.ReferralAppliedMinor,
		PromoActive:          s.Discounts.PromoActive,
		PromoCode:            s.Discounts.PromoCode,
		Modality:             s.Modality,
		Notice:               notice,
		Pending:              s.Pending(),
		FloorHint:            hint,
		FloorWarning:         hint.Warns(s.DesiredCreditMinor),
	}
}
