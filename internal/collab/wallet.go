package collab

import (
	"context"
	"time"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// WalletClient reads the student's credit balance.
type WalletClient struct {
	base
	now func() time.Time
}

func NewWalletClient(cfg Config) *WalletClient {
	return &WalletClient{base: newBase("wallet", cfg), now: time.Now}
}

// Balance returns the raw balance of the caller's wallet.
func (c *WalletClient) Balance(ctx context.Context) (model.WalletBalance, error) {
	var out model.WalletBalance
	if err := c.getJSON(ctx, "/v1/wallet/balance", &out); err != nil {
		return model.WalletBalance{}, err
	}
	return out, nil
}

// Spendable returns the balance usable right now; expired credit counts as
// zero.
func (c *WalletClient) Spendable(ctx context.Context) (int64, error) {
	b, err := c.Balance(ctx)
	if err != nil {
		return 0, err
	}
	return b.SpendableAt(c.now()), nil
}
