package book

import (
	"errors"
	"iter"

	"solex/internal/common"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyList        = errors.New("order list is empty")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidDeduction = errors.New("invalid deduction")
)

type node struct {
	order *common.Order
	prev  *node
	next  *node
}

// OrderList is one side of the book: a doubly linked list of resting orders
// kept in price priority. Asks are inserted with InsertAsAsk (lowest price
// first) and bids with InsertAsBid (highest price first). Orders at the same
// price keep their arrival order.
//
// An OrderList is not safe for concurrent use; the engine owns it.
type OrderList struct {
	head *node
	tail *node
	size int
}

// NewOrderList returns an empty list.
func NewOrderList() *OrderList {
	return &OrderList{}
}

func (l *OrderList) IsEmpty() bool {
	return l.head == nil
}

func (l *OrderList) Size() int {
	return l.size
}

// PeekFront returns the highest priority order.
func (l *OrderList) PeekFront() (*common.Order, bool) {
	if l.head == nil {
		return nil, false
	}
	return l.head.order, true
}

// PeekBack returns the lowest priority order.
func (l *OrderList) PeekBack() (*common.Order, bool) {
	if l.tail == nil {
		return nil, false
	}
	return l.tail.order, true
}

// InsertAsAsk inserts the order in ascending price order.
func (l *OrderList) InsertAsAsk(order *common.Order) {
	l.insert(order, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
}

// InsertAsBid inserts the order in descending price order.
func (l *OrderList) InsertAsBid(order *common.Order) {
	l.insert(order, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
}

// insert places the order ahead of the first resting order it strictly
// beats on price. Equal prices never jump ahead, which keeps FIFO.
func (l *OrderList) insert(order *common.Order, better func(a, b decimal.Decimal) bool) {
	n := &node{order: order}

	switch {
	case l.head == nil:
		l.head, l.tail = n, n
	case better(order.Price, l.head.order.Price):
		n.next = l.head
		l.head.prev = n
		l.head = n
	case !better(order.Price, l.tail.order.Price):
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	default:
		// The scan always terminates before the tail, since the order beats
		// the tail on price.
		cur := l.head
		for !better(order.Price, cur.next.order.Price) {
			cur = cur.next
		}
		n.prev = cur
		n.next = cur.next
		cur.next.prev = n
		cur.next = n
	}
	l.size++
}

// RemoveFront removes and returns the front order.
func (l *OrderList) RemoveFront() (*common.Order, bool) {
	if l.head == nil {
		return nil, false
	}
	n := l.head
	l.unlink(n)
	return n.order, true
}

// RemoveBack removes and returns the back order.
func (l *OrderList) RemoveBack() (*common.Order, bool) {
	if l.tail == nil {
		return nil, false
	}
	n := l.tail
	l.unlink(n)
	return n.order, true
}

// DeductFrontQuantity decrements the front order's quantity in place. The
// amount must leave a positive quantity behind; a full fill is a
// RemoveFront.
func (l *OrderList) DeductFrontQuantity(amount decimal.Decimal) error {
	if l.head == nil {
		return ErrEmptyList
	}
	return deduct(l.head.order, amount)
}

// FirstWhere returns the highest priority order matching pred.
func (l *OrderList) FirstWhere(pred func(*common.Order) bool) (*common.Order, bool) {
	for n := l.head; n != nil; n = n.next {
		if pred(n.order) {
			return n.order, true
		}
	}
	return nil, false
}

// Remove unlinks the given resting order, located by identity.
func (l *OrderList) Remove(order *common.Order) error {
	if l.head != nil && l.head.order == order {
		l.RemoveFront()
		return nil
	}
	n := l.find(order)
	if n == nil {
		return ErrOrderNotFound
	}
	l.unlink(n)
	return nil
}

// Deduct decrements the given resting order's quantity in place.
func (l *OrderList) Deduct(order *common.Order, amount decimal.Decimal) error {
	if l.head != nil && l.head.order == order {
		return l.DeductFrontQuantity(amount)
	}
	n := l.find(order)
	if n == nil {
		return ErrOrderNotFound
	}
	return deduct(n.order, amount)
}

// All yields copies of the resting orders from front to back. The sequence
// must not be ranged over while the list is being mutated.
func (l *OrderList) All() iter.Seq[common.Order] {
	return func(yield func(common.Order) bool) {
		for n := l.head; n != nil; n = n.next {
			if !yield(*n.order) {
				return
			}
		}
	}
}

// Orders returns a copy of the list contents in priority order.
func (l *OrderList) Orders() []common.Order {
	orders := make([]common.Order, 0, l.size)
	for order := range l.All() {
		orders = append(orders, order)
	}
	return orders
}

func (l *OrderList) Clear() {
	l.head, l.tail = nil, nil
	l.size = 0
}

func (l *OrderList) find(order *common.Order) *node {
	for n := l.head; n != nil; n = n.next {
		if n.order == order {
			return n
		}
	}
	return nil
}

func (l *OrderList) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.size--
}

func deduct(order *common.Order, amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThanOrEqual(order.Quantity) {
		return ErrInvalidDeduction
	}
	order.Quantity = order.Quantity.Sub(amount)
	return nil
}
