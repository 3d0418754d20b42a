package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// flexFloat unmarshals from a JSON number or a quoted numeric string. The
// exchange sends most monetary fields as strings ("0.6408") but a few legacy
// endpoints use raw numbers.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// millisTime unmarshals an epoch-milliseconds timestamp.
type millisTime struct {
	time.Time
}

func (m *millisTime) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	if ms > 0 {
		m.Time = time.UnixMilli(ms).UTC()
	}
	return nil
}

// apiError is the standard error envelope for non-2xx responses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// --------------------------------------------------------------------------
// Dual-investment DTOs
// --------------------------------------------------------------------------

// apiProduct is one entry of GET /sapi/v1/dci/product/list.
type apiProduct struct {
	ID            string     `json:"id"`
	InvestCoin    string     `json:"investCoin"`
	ExercisedCoin string     `json:"exercisedCoin"`
	StrikePrice   flexFloat  `json:"strikePrice"`
	Duration      int        `json:"duration"`
	SettleDate    millisTime `json:"settleDate"`
	APR           flexFloat  `json:"apr"`
	OrderID       int64      `json:"orderId"`
	MinAmount     flexFloat  `json:"minAmount"`
	MaxAmount     flexFloat  `json:"maxAmount"`
	CanPurchase   bool       `json:"canPurchase"`
	OptionType    string     `json:"optionType"`
}

type apiProductList struct {
	Total int          `json:"total"`
	List  []apiProduct `json:"list"`
}

// ToDomain converts the wire product into the cycle-local domain Product.
// SpotPrice is left zero; the snapshot assembler joins it in.
func (p *apiProduct) ToDomain() domain.Product {
	return domain.Product{
		ID:            p.ID,
		OptionType:    domain.OptionType(p.OptionType),
		ExercisedCoin: p.ExercisedCoin,
		InvestCoin:    p.InvestCoin,
		StrikePrice:   float64(p.StrikePrice),
		APR:           float64(p.APR),
		SettleDate:    p.SettleDate.Time,
		MinSubscribe:  float64(p.MinAmount),
		MaxSubscribe:  float64(p.MaxAmount),
	}
}

// apiSubscribeResponse is the body of POST /sapi/v1/dci/product/subscribe.
type apiSubscribeResponse struct {
	PositionID     json.Number `json:"positionId"`
	InvestCoin     string      `json:"investCoin"`
	ExercisedCoin  string      `json:"exercisedCoin"`
	SubscribeAmt   flexFloat   `json:"subscriptionAmount"`
	PurchaseStatus string      `json:"purchaseStatus"`
}

// apiPosition is one entry of GET /sapi/v1/dci/product/positions.
type apiPosition struct {
	ID                 string     `json:"id"`
	InvestCoin         string     `json:"investCoin"`
	ExercisedCoin      string     `json:"exercisedCoin"`
	SubscriptionAmount flexFloat  `json:"subscriptionAmount"`
	StrikePrice        flexFloat  `json:"strikePrice"`
	Duration           int        `json:"duration"`
	SettleDate         millisTime `json:"settleDate"`
	PurchaseStatus     string     `json:"purchaseStatus"`
	APR                flexFloat  `json:"apr"`
	PurchaseTime       millisTime `json:"purchaseTime"`
	OptionType         string     `json:"optionType"`
}

type apiPositionList struct {
	Total int           `json:"total"`
	List  []apiPosition `json:"list"`
}

// ToDomain converts a wire position. The trading pair is derived from the
// coin roles: a PUT invests the stable coin against the exercised asset, a
// CALL invests the asset against the exercised stable.
func (p *apiPosition) ToDomain() domain.Position {
	ot := domain.OptionType(p.OptionType)
	pair := p.InvestCoin + p.ExercisedCoin
	if ot == domain.OptionTypePut {
		pair = p.ExercisedCoin + p.InvestCoin
	}
	return domain.Position{
		ID:                 p.ID,
		Pair:               pair,
		OptionType:         ot,
		SubscriptionAmount: float64(p.SubscriptionAmount),
		StrikePrice:        float64(p.StrikePrice),
		SettleDate:         p.SettleDate.Time,
		APR:                float64(p.APR),
		PurchaseTime:       p.PurchaseTime.Time,
	}
}

// --------------------------------------------------------------------------
// Spot and margin DTOs
// --------------------------------------------------------------------------

// apiTickerPrice is one entry of GET /api/v3/ticker/price.
type apiTickerPrice struct {
	Symbol string    `json:"symbol"`
	Price  flexFloat `json:"price"`
}

// apiAccount is the body of GET /api/v3/account.
type apiAccount struct {
	Balances []apiBalance `json:"balances"`
}

type apiBalance struct {
	Asset  string    `json:"asset"`
	Free   flexFloat `json:"free"`
	Locked flexFloat `json:"locked"`
}

// apiMarginOrder is the body of POST /sapi/v1/margin/order.
type apiMarginOrder struct {
	OrderID      int64     `json:"orderId"`
	Symbol       string    `json:"symbol"`
	Status       string    `json:"status"`
	Side         string    `json:"side"`
	ExecutedQty  flexFloat `json:"executedQty"`
	TransactTime int64     `json:"transactTime"`
}

// apiBorrow is the body of POST /sapi/v2/loan/flexible/borrow.
type apiBorrow struct {
	LoanCoin         string      `json:"loanCoin"`
	LoanAmount       flexFloat   `json:"loanAmount"`
	CollateralCoin   string      `json:"collateralCoin"`
	CollateralAmount flexFloat   `json:"collateralAmount"`
	Status           string      `json:"status"`
	TranID           json.Number `json:"tranId"`
}

// --------------------------------------------------------------------------
// Exchange info DTOs
// --------------------------------------------------------------------------

// apiExchangeInfo is the (trimmed) body of GET /api/v3/exchangeInfo.
type apiExchangeInfo struct {
	Symbols []apiSymbolInfo `json:"symbols"`
}

type apiSymbolInfo struct {
	Symbol  string          `json:"symbol"`
	Filters []apiSymbolRule `json:"filters"`
}

type apiSymbolRule struct {
	FilterType string    `json:"filterType"`
	StepSize   flexFloat `json:"stepSize"`
	MinQty     flexFloat `json:"minQty"`
}
