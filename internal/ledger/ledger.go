// Package ledger holds the authoritative per-user balances of the exchange.
//
// Every balance is split into an available part, which can be withdrawn or
// committed to a new order, and a locked part, which backs resting orders.
// Settlement only ever spends locked funds, so a fill can never find the
// payer short.
package ledger

import (
	"fmt"

	"solex/internal/common"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// User is a read-only copy of one account.
type User struct {
	ID       string                   `json:"user_id"`
	Balances map[common.Asset]Balance `json:"balances"`
}

type account struct {
	id       string
	balances map[common.Asset]*Balance
}

func (a *account) snapshot() User {
	user := User{
		ID:       a.id,
		Balances: make(map[common.Asset]Balance, len(a.balances)),
	}
	for asset, balance := range a.balances {
		user.Balances[asset] = *balance
	}
	return user
}

// Ledger is not safe for concurrent use; callers serialize access.
type Ledger struct {
	assets   []common.Asset
	accounts *btree.Map[string, *account]
}

// New creates a ledger tracking the given assets. Every account carries a
// zero balance for each of them from creation.
func New(assets ...common.Asset) *Ledger {
	return &Ledger{
		assets:   assets,
		accounts: btree.NewMap[string, *account](0),
	}
}

func (l *Ledger) Assets() []common.Asset {
	return append([]common.Asset(nil), l.assets...)
}

func (l *Ledger) Exists(userID string) bool {
	_, ok := l.accounts.Get(userID)
	return ok
}

// GetOrCreate returns the user's balances, opening a zero-balance account
// on first reference.
func (l *Ledger) GetOrCreate(userID string) User {
	if acc, ok := l.accounts.Get(userID); ok {
		return acc.snapshot()
	}
	acc := &account{
		id:       userID,
		balances: make(map[common.Asset]*Balance, len(l.assets)),
	}
	for _, asset := range l.assets {
		acc.balances[asset] = &Balance{}
	}
	l.accounts.Set(userID, acc)
	return acc.snapshot()
}

func (l *Ledger) Get(userID string) (User, error) {
	acc, err := l.account(userID)
	if err != nil {
		return User{}, err
	}
	return acc.snapshot(), nil
}

func (l *Ledger) BalanceOf(userID string, asset common.Asset) (Balance, error) {
	b, err := l.balance(userID, asset)
	if err != nil {
		return Balance{}, err
	}
	return *b, nil
}

// Users returns every account ordered by user id.
func (l *Ledger) Users() []User {
	users := make([]User, 0, l.accounts.Len())
	l.accounts.Scan(func(_ string, acc *account) bool {
		users = append(users, acc.snapshot())
		return true
	})
	return users
}

// Total sums the asset across all accounts, locked funds included.
func (l *Ledger) Total(asset common.Asset) decimal.Decimal {
	total := decimal.Zero
	l.accounts.Scan(func(_ string, acc *account) bool {
		if b, ok := acc.balances[asset]; ok {
			total = total.Add(b.Total())
		}
		return true
	})
	return total
}

func (l *Ledger) Deposit(userID string, asset common.Asset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit of %s", common.ErrInvalidAmount, amount)
	}
	b, err := l.balance(userID, asset)
	if err != nil {
		return err
	}
	b.Available = b.Available.Add(amount)
	return nil
}

// Withdraw draws on available funds only. Funds backing resting orders
// cannot be withdrawn.
func (l *Ledger) Withdraw(userID string, asset common.Asset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal of %s", common.ErrInvalidAmount, amount)
	}
	b, err := l.balance(userID, asset)
	if err != nil {
		return err
	}
	if b.Available.LessThan(amount) {
		return fmt.Errorf("%w: %s available %s, requested %s",
			common.ErrInsufficientBalance, asset, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	return nil
}

// Lock moves available funds into the locked bucket.
func (l *Ledger) Lock(userID string, asset common.Asset, amount decimal.Decimal) error {
	b, err := l.balance(userID, asset)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: lock of %s", common.ErrInvalidAmount, amount)
	}
	if b.Available.LessThan(amount) {
		return fmt.Errorf("%w: %s available %s, required %s",
			common.ErrInsufficientBalance, asset, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return nil
}

// Unlock releases locked funds back to available.
func (l *Ledger) Unlock(userID string, asset common.Asset, amount decimal.Decimal) error {
	b, err := l.balance(userID, asset)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: unlock of %s", common.ErrInvalidAmount, amount)
	}
	if b.Locked.LessThan(amount) {
		return fmt.Errorf("%w: %s locked %s, releasing %s",
			common.ErrInsufficientBalance, asset, b.Locked, amount)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	return nil
}

type leg struct {
	balance *Balance
	locked  decimal.Decimal // delta applied to Locked
	avail   decimal.Decimal // delta applied to Available
}

// Transfer settles one fill: quantity of asset moves from -> to and
// proceeds of proceedsAsset move to -> from. Both payers spend locked
// funds and both receivers are credited available funds. The four legs are
// staged and checked first, so either all of them apply or none does.
// from and to may be the same user.
func (l *Ledger) Transfer(
	from, to string,
	asset common.Asset, quantity decimal.Decimal,
	proceedsAsset common.Asset, proceeds decimal.Decimal,
) error {
	if quantity.IsNegative() || proceeds.IsNegative() {
		return fmt.Errorf("%w: transfer of %s %s for %s %s",
			common.ErrInvalidAmount, quantity, asset, proceeds, proceedsAsset)
	}

	fromAsset, err := l.balance(from, asset)
	if err != nil {
		return err
	}
	toAsset, err := l.balance(to, asset)
	if err != nil {
		return err
	}
	fromProceeds, err := l.balance(from, proceedsAsset)
	if err != nil {
		return err
	}
	toProceeds, err := l.balance(to, proceedsAsset)
	if err != nil {
		return err
	}

	legs := []leg{
		{balance: fromAsset, locked: quantity.Neg()},
		{balance: toAsset, avail: quantity},
		{balance: toProceeds, locked: proceeds.Neg()},
		{balance: fromProceeds, avail: proceeds},
	}

	// Stage against copies keyed by balance so a self-trade nets out.
	staged := make(map[*Balance]Balance, len(legs))
	for _, lg := range legs {
		b, ok := staged[lg.balance]
		if !ok {
			b = *lg.balance
		}
		b.Locked = b.Locked.Add(lg.locked)
		b.Available = b.Available.Add(lg.avail)
		if b.Locked.IsNegative() {
			return fmt.Errorf("%w: settlement of %s %s for %s %s",
				common.ErrInsufficientBalance, quantity, asset, proceeds, proceedsAsset)
		}
		staged[lg.balance] = b
	}

	for ptr, b := range staged {
		*ptr = b
	}
	return nil
}

func (l *Ledger) account(userID string) (*account, error) {
	acc, ok := l.accounts.Get(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownUser, userID)
	}
	return acc, nil
}

func (l *Ledger) balance(userID string, asset common.Asset) (*Balance, error) {
	acc, err := l.account(userID)
	if err != nil {
		return nil, err
	}
	b, ok := acc.balances[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s for user %s", common.ErrUnknownAsset, asset, userID)
	}
	return b, nil
}
