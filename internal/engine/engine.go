package engine

import (
	"sync"

	"solex/internal/book"
	"solex/internal/common"
	"solex/internal/ledger"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config selects the traded pair and tunes matching and queries.
type Config struct {
	BaseAsset  common.Asset `yaml:"base_asset"`
	QuoteAsset common.Asset `yaml:"quote_asset"`
	// SkipSelfMatch makes incoming orders pass over resting orders owned by
	// the same user instead of trading with them.
	SkipSelfMatch bool `yaml:"skip_self_match"`
	// DepthLevels caps the number of price levels per side returned by
	// Depth. Zero means unlimited.
	DepthLevels int `yaml:"depth_levels"`
	// TradeHistory is how many recent trades the engine keeps in memory.
	TradeHistory int `yaml:"trade_history"`
}

func DefaultConfig() Config {
	return Config{
		BaseAsset:    common.SOL,
		QuoteAsset:   common.USDC,
		DepthLevels:  20,
		TradeHistory: 1000,
	}
}

// Reporter is told about every trade once the engine has released its lock.
type Reporter interface {
	ReportTrade(trade common.Trade) error
}

// Engine owns the book for one pair together with the ledger that backs it.
// Every mutation holds the write lock for its full duration, so order
// submissions never interleave. Queries share the read lock.
type Engine struct {
	mu  sync.RWMutex
	cfg Config

	bids *book.OrderList // Highest price first.
	asks *book.OrderList // Lowest price first.

	ledger      *ledger.Ledger
	latestPrice map[common.Asset]decimal.Decimal
	trades      deque.Deque[common.Trade]

	reporter Reporter
}

// New returns an engine with an empty book and ledger for cfg's pair.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		bids:        book.NewOrderList(),
		asks:        book.NewOrderList(),
		ledger:      ledger.New(cfg.BaseAsset, cfg.QuoteAsset),
		latestPrice: make(map[common.Asset]decimal.Decimal),
	}
}

func (engine *Engine) Config() Config {
	return engine.cfg
}

// SetReporter installs the receiver of trade notifications.
func (engine *Engine) SetReporter(reporter Reporter) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.reporter = reporter
}

// CreateUser opens an account with zero balances, or returns the existing
// one.
func (engine *Engine) CreateUser(userID string) ledger.User {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	exists := engine.ledger.Exists(userID)
	user := engine.ledger.GetOrCreate(userID)
	if !exists {
		log.Info().Str("user", userID).Msg("new exchange user")
	}
	return user
}

func (engine *Engine) Deposit(userID string, asset common.Asset, amount decimal.Decimal) error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if err := engine.ledger.Deposit(userID, asset, amount); err != nil {
		return err
	}
	log.Debug().
		Str("user", userID).
		Str("asset", asset.String()).
		Str("amount", amount.String()).
		Msg("deposit")
	return nil
}

// Withdraw only draws on funds not committed to resting orders.
func (engine *Engine) Withdraw(userID string, asset common.Asset, amount decimal.Decimal) error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if err := engine.ledger.Withdraw(userID, asset, amount); err != nil {
		return err
	}
	log.Debug().
		Str("user", userID).
		Str("asset", asset.String()).
		Str("amount", amount.String()).
		Msg("withdrawal")
	return nil
}

// Balances returns a copy of the user's account.
func (engine *Engine) Balances(userID string) (ledger.User, error) {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.ledger.Get(userID)
}

// Users lists every account, ordered by user id.
func (engine *Engine) Users() []ledger.User {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.ledger.Users()
}

func (engine *Engine) report(reporter Reporter, trades []common.Trade) {
	if reporter == nil {
		return
	}
	for _, trade := range trades {
		if err := reporter.ReportTrade(trade); err != nil {
			log.Error().Err(err).Str("trade", trade.UUID).Msg("unable to report trade")
		}
	}
}
