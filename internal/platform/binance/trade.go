package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// codeStaleRate is the business rejection returned when the advertised APR
// changed between listing and subscribe. The dispatcher treats it as
// recoverable and retries once against a re-fetched product.
const codeStaleRate = -6023

// Subscribe commits amount of the product's invest coin to the given
// product. In mock mode the call is logged and a synthetic confirmation is
// returned.
func (c *Client) Subscribe(ctx context.Context, productID string, amount float64) (domain.SubscribeResult, error) {
	if c.mock {
		c.log.Info("mock subscribe", "product_id", productID, "amount", amount)
		return domain.SubscribeResult{
			PositionID: "mock-" + uuid.NewString(),
			ProductID:  productID,
			Amount:     amount,
			Success:    true,
		}, nil
	}

	params := url.Values{}
	params.Set("id", productID)
	params.Set("depositAmount", formatAmount(amount))
	params.Set("autoCompoundPlan", "NONE")

	body, err := c.doSigned(ctx, http.MethodPost, "/sapi/v1/dci/product/subscribe", params)
	if err != nil {
		if IsCode(err, codeStaleRate) {
			return domain.SubscribeResult{ProductID: productID, Amount: amount}, fmt.Errorf("binance: subscribe %s: %w", productID, domain.ErrStaleRate)
		}
		return domain.SubscribeResult{ProductID: productID, Amount: amount}, fmt.Errorf("binance: subscribe %s: %w", productID, err)
	}

	var resp apiSubscribeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SubscribeResult{}, fmt.Errorf("binance: decode subscribe response: %w", err)
	}

	res := domain.SubscribeResult{
		PositionID: resp.PositionID.String(),
		ProductID:  productID,
		Amount:     amount,
		Success:    resp.PurchaseStatus == "PURCHASE_SUCCESS" || resp.PurchaseStatus == "PURCHASING",
		Message:    resp.PurchaseStatus,
	}
	if !res.Success {
		return res, fmt.Errorf("binance: subscribe %s rejected: status=%s", productID, resp.PurchaseStatus)
	}
	return res, nil
}

// OpenMarginPosition submits a cross-margin market order used for hedging.
// The call either fully succeeds or returns an error; partial state is the
// exchange's concern.
func (c *Client) OpenMarginPosition(ctx context.Context, symbol string, side domain.MarginSide, quantity float64) (domain.OrderResult, error) {
	if c.mock {
		c.log.Info("mock margin order", "symbol", symbol, "side", side, "quantity", quantity)
		return domain.OrderResult{
			OrderID:   "mock-" + uuid.NewString(),
			Symbol:    symbol,
			Side:      side,
			Quantity:  quantity,
			Success:   true,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", formatAmount(quantity))

	body, err := c.doSigned(ctx, http.MethodPost, "/sapi/v1/margin/order", params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return domain.OrderResult{Symbol: symbol, Side: side, Quantity: quantity, Code: apiErr.Code, Message: apiErr.Message},
				fmt.Errorf("binance: margin order %s %s: %w", symbol, side, err)
		}
		return domain.OrderResult{Symbol: symbol, Side: side, Quantity: quantity}, fmt.Errorf("binance: margin order %s %s: %w", symbol, side, err)
	}

	var resp apiMarginOrder
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: decode margin order: %w", err)
	}

	res := domain.OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    resp.Symbol,
		Side:      domain.MarginSide(resp.Side),
		Quantity:  float64(resp.ExecutedQty),
		Success:   resp.Status == "FILLED" || resp.Status == "PARTIALLY_FILLED" || resp.Status == "NEW",
		Message:   resp.Status,
		CreatedAt: time.UnixMilli(resp.TransactTime).UTC(),
	}
	if !res.Success {
		return res, fmt.Errorf("binance: margin order %s %s rejected: status=%s", symbol, side, resp.Status)
	}
	return res, nil
}

// BorrowCoins takes a flexible loan of amount coin against the given
// collateral.
func (c *Client) BorrowCoins(ctx context.Context, coin string, amount float64, collateralCoin string, collateralAmount float64) (domain.BorrowResult, error) {
	if c.mock {
		c.log.Info("mock borrow", "coin", coin, "amount", amount,
			"collateral_coin", collateralCoin, "collateral_amount", collateralAmount)
		return domain.BorrowResult{
			TranID:           "mock-" + uuid.NewString(),
			Coin:             coin,
			Amount:           amount,
			CollateralCoin:   collateralCoin,
			CollateralAmount: collateralAmount,
		}, nil
	}

	params := url.Values{}
	params.Set("loanCoin", coin)
	params.Set("loanAmount", formatAmount(amount))
	params.Set("collateralCoin", collateralCoin)
	params.Set("collateralAmount", formatAmount(collateralAmount))

	body, err := c.doSigned(ctx, http.MethodPost, "/sapi/v2/loan/flexible/borrow", params)
	if err != nil {
		return domain.BorrowResult{}, fmt.Errorf("binance: borrow %s against %s: %w", coin, collateralCoin, err)
	}

	var resp apiBorrow
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BorrowResult{}, fmt.Errorf("binance: decode borrow response: %w", err)
	}
	if resp.Status != "Succeeds" {
		return domain.BorrowResult{}, fmt.Errorf("binance: borrow %s against %s rejected: status=%s", coin, collateralCoin, resp.Status)
	}

	return domain.BorrowResult{
		TranID:           resp.TranID.String(),
		Coin:             resp.LoanCoin,
		Amount:           float64(resp.LoanAmount),
		CollateralCoin:   resp.CollateralCoin,
		CollateralAmount: float64(resp.CollateralAmount),
	}, nil
}

// formatAmount renders a quantity without scientific notation or trailing
// zeros, as the exchange expects.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
