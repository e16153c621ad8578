package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"solex/internal/common"
	"solex/internal/engine"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

type APIError struct {
	Error string `json:"error"`
}

// New builds the HTTP surface of the exchange.
func New(eng *engine.Engine) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Debug()
			if v.Error != nil {
				event = log.Info().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("http request")
			return nil
		},
	}))

	h := &Handler{engine: eng}
	e.POST("/users", h.CreateUser)
	e.POST("/users/:id/deposit", h.Deposit)
	e.POST("/users/:id/withdraw", h.Withdraw)
	e.GET("/users/:id/balances", h.GetBalances)

	e.POST("/orders", h.PlaceOrder)

	e.GET("/orderbook", h.GetOrderBook)
	e.GET("/depth", h.GetDepth)
	e.GET("/price/:asset", h.GetLatestPrice)
	e.GET("/trades", h.GetTrades)
	e.GET("/quote", h.GetQuote)
	return e
}

// Run serves e on address until ctx is cancelled.
func Run(ctx context.Context, e *echo.Echo, address string) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("address", address).Msg("http server running")
		errc <- e.Start(address)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("http server shut down")
	return nil
}

// statusOf maps engine errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, common.ErrNotEnoughLiquidity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrUnsupportedOrderFeature):
		return http.StatusNotImplemented
	case errors.Is(err, common.ErrInvalidOrder),
		errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrUnknownAsset):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, message := statusOf(err), err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status, message = he.Code, fmt.Sprint(he.Message)
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
	}

	if err := c.JSON(status, APIError{Error: message}); err != nil {
		log.Error().Err(err).Msg("unable to write error response")
	}
}
