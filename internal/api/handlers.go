package api

import (
	"fmt"
	"net/http"
	"strconv"

	"solex/internal/common"
	"solex/internal/engine"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type Handler struct {
	engine *engine.Engine
}

type CreateUserRequest struct {
	ID string `json:"id"`
}

type FundsRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type PlaceOrderRequest struct {
	UserID     string          `json:"user_id"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Asset      string          `json:"asset"`
	QuoteAsset string          `json:"quote_asset"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderID         string          `json:"order_id"`
	FilledQuantity  decimal.Decimal `json:"filled_quantity"`
	RestingQuantity decimal.Decimal `json:"resting_quantity"`
	Trades          []common.Trade  `json:"trades"`
}

type PriceResponse struct {
	Asset common.Asset    `json:"asset"`
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	return c.JSON(http.StatusCreated, h.engine.CreateUser(req.ID))
}

func (h *Handler) Deposit(c echo.Context) error {
	return h.moveFunds(c, h.engine.Deposit)
}

func (h *Handler) Withdraw(c echo.Context) error {
	return h.moveFunds(c, h.engine.Withdraw)
}

func (h *Handler) moveFunds(c echo.Context, move func(string, common.Asset, decimal.Decimal) error) error {
	userID := c.Param("id")
	var req FundsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	asset, err := common.ParseAsset(req.Asset)
	if err != nil {
		return err
	}
	if err := move(userID, asset, req.Amount); err != nil {
		return err
	}
	return h.balances(c, userID)
}

func (h *Handler) GetBalances(c echo.Context) error {
	return h.balances(c, c.Param("id"))
}

func (h *Handler) balances(c echo.Context, userID string) error {
	user, err := h.engine.Balances(userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) PlaceOrder(c echo.Context) error {
	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	order, err := h.order(req)
	if err != nil {
		return err
	}

	fill, err := h.engine.SubmitOrder(order)
	if err != nil {
		return err
	}

	resp := PlaceOrderResponse{
		OrderID:         fill.OrderID,
		FilledQuantity:  fill.FilledQuantity,
		RestingQuantity: fill.RestingQuantity,
		Trades:          fill.Trades,
	}
	if resp.Trades == nil {
		resp.Trades = []common.Trade{}
	}
	return c.JSON(http.StatusCreated, resp)
}

// order builds an engine order from the request. Missing assets default to
// the pair the engine trades.
func (h *Handler) order(req PlaceOrderRequest) (common.Order, error) {
	side, err := common.ParseSide(req.Side)
	if err != nil {
		return common.Order{}, err
	}
	orderType, err := common.ParseOrderType(req.Type)
	if err != nil {
		return common.Order{}, err
	}

	cfg := h.engine.Config()
	asset, quote := cfg.BaseAsset, cfg.QuoteAsset
	if req.Asset != "" {
		if asset, err = common.ParseAsset(req.Asset); err != nil {
			return common.Order{}, err
		}
	}
	if req.QuoteAsset != "" {
		if quote, err = common.ParseAsset(req.QuoteAsset); err != nil {
			return common.Order{}, err
		}
	}

	return common.Order{
		UserID:         req.UserID,
		Side:           side,
		OrderType:      orderType,
		Asset:          asset,
		SecondaryAsset: quote,
		Price:          req.Price,
		Quantity:       req.Quantity,
	}, nil
}

func (h *Handler) GetOrderBook(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.OrderBook())
}

func (h *Handler) GetDepth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Depth())
}

func (h *Handler) GetLatestPrice(c echo.Context) error {
	asset, err := common.ParseAsset(c.Param("asset"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PriceResponse{
		Asset: asset,
		Price: h.engine.LatestPrice(asset),
	})
}

func (h *Handler) GetTrades(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		}
		limit = n
	}
	return c.JSON(http.StatusOK, h.engine.Trades(limit))
}

func (h *Handler) GetQuote(c echo.Context) error {
	side, err := common.ParseSide(c.QueryParam("side"))
	if err != nil {
		return err
	}
	quantity, err := decimal.NewFromString(c.QueryParam("quantity"))
	if err != nil {
		return fmt.Errorf("%w: quantity: %w", common.ErrInvalidOrder, err)
	}

	quote, err := h.engine.Quote(side, quantity, c.QueryParam("user"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quote)
}
