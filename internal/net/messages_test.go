package net

import (
	"bytes"
	"math"
	"testing"
	"time"

	"solex/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, m Message) []byte {
	t.Helper()
	buf, err := m.Encode()
	require.NoError(t, err)
	return buf
}

func TestParseMessage_NewOrder(t *testing.T) {
	buf := encode(t, &NewOrderMessage{
		OrderType:  common.LimitOrder,
		Asset:      "SOL",
		QuoteAsset: "USDC",
		Price:      101.25,
		Quantity:   3.5,
		Side:       common.Sell,
		Username:   "alice",
	})
	require.Len(t, buf, BaseMessageHeaderLen+NewOrderMessageHeaderLen+5)

	msg, n, err := parseMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	m, ok := msg.(*NewOrderMessage)
	require.True(t, ok)
	assert.Equal(t, NewOrder, m.GetType())
	assert.Equal(t, "SOL", m.Asset)
	assert.Equal(t, "USDC", m.QuoteAsset)
	assert.Equal(t, "alice", m.Username)

	order, err := m.Order()
	require.NoError(t, err)
	assert.Equal(t, common.Sell, order.Side)
	assert.Equal(t, common.SOL, order.Asset)
	assert.Equal(t, common.USDC, order.SecondaryAsset)
	assert.True(t, decimal.RequireFromString("101.25").Equal(order.Price))
	assert.True(t, decimal.RequireFromString("3.5").Equal(order.Quantity))
}

func TestParseMessage_Incomplete(t *testing.T) {
	buf := encode(t, &AccountMessage{
		BaseMessage: BaseMessage{TypeOf: Deposit},
		Asset:       "USDC",
		Amount:      1000,
		Username:    "bob",
	})

	// Every strict prefix is incomplete, never an error.
	for i := range len(buf) {
		_, _, err := parseMessage(buf[:i])
		assert.ErrorIs(t, err, ErrIncompleteMessage, "prefix %d", i)
	}

	msg, n, err := parseMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, &AccountMessage{
		BaseMessage: BaseMessage{TypeOf: Deposit},
		Asset:       "USDC",
		Amount:      1000,
		Username:    "bob",
	}, msg)
}

func TestParseMessage_Stream(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encode(t, &CreateUserMessage{Username: "carol"}))
	stream.Write(encode(t, BaseMessage{TypeOf: Heartbeat}))
	stream.Write(encode(t, &AccountMessage{
		BaseMessage: BaseMessage{TypeOf: Withdraw},
		Asset:       "SOL",
		Amount:      1.5,
		Username:    "carol",
	}))

	buf := stream.Bytes()
	var types []MessageType
	for len(buf) > 0 {
		msg, n, err := parseMessage(buf)
		require.NoError(t, err)
		types = append(types, msg.GetType())
		buf = buf[n:]
	}
	assert.Equal(t, []MessageType{CreateUser, Heartbeat, Withdraw}, types)
}

func TestParseMessage_InvalidType(t *testing.T) {
	_, _, err := parseMessage([]byte{0xff, 0xff, 0x00})
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestEncode_UsernameTooLong(t *testing.T) {
	long := string(bytes.Repeat([]byte("x"), 256))
	_, err := (&CreateUserMessage{Username: long}).Encode()
	assert.ErrorIs(t, err, ErrUsernameTooLong)
	_, err = (&NewOrderMessage{Username: long}).Encode()
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestNewOrderMessage_Order_Invalid(t *testing.T) {
	tests := []struct {
		name string
		msg  NewOrderMessage
		want error
	}{
		{"nan price", NewOrderMessage{Asset: "SOL", Price: math.NaN(), Quantity: 1}, common.ErrInvalidOrder},
		{"infinite quantity", NewOrderMessage{Asset: "SOL", Price: 1, Quantity: math.Inf(1)}, common.ErrInvalidOrder},
		{"missing asset", NewOrderMessage{Price: 1, Quantity: 1}, common.ErrUnknownAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.msg.Order()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewOrderMessage_Order_DefaultsQuote(t *testing.T) {
	m := NewOrderMessage{Asset: "sol", Price: 1, Quantity: 1, Username: "dave"}
	order, err := m.Order()
	require.NoError(t, err)
	assert.Equal(t, common.SOL, order.Asset)
	assert.Equal(t, common.Asset(""), order.SecondaryAsset)
}

func TestReport_SerializeAndRead(t *testing.T) {
	trade := common.Trade{
		Asset:       common.SOL,
		QuoteAsset:  common.USDC,
		Price:       decimal.RequireFromString("100.5"),
		Quantity:    decimal.RequireFromString("2"),
		Buyer:       "bob",
		Seller:      "alice",
		BuyOrderID:  "7c6c2a48-3f8e-4f5c-9f59-1b2d0c1f9e10",
		SellOrderID: "0a1b2c3d-0000-4000-8000-000000000001",
		Timestamp:   time.Unix(0, 42),
	}
	buyer, seller := generateWireTradeReports(trade)

	buf, err := buyer.Serialize()
	require.NoError(t, err)
	assert.Len(t, buf, ReportFixedHeaderLen+len("alice"))

	got, err := ReadReport(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, buyer, got)
	assert.Equal(t, ExecutionReport, got.MessageType)
	assert.Equal(t, common.Buy, got.Side)
	assert.Equal(t, "alice", got.Counterparty)
	assert.Equal(t, trade.BuyOrderID, got.UUID)
	assert.Equal(t, 100.5, got.Price)
	assert.Equal(t, uint64(42), got.Timestamp)

	assert.Equal(t, common.Sell, seller.Side)
	assert.Equal(t, "bob", seller.Counterparty)
	assert.Equal(t, trade.SellOrderID, seller.UUID)
}

func TestReport_Error(t *testing.T) {
	report := generateWireErrorReport(common.ErrInsufficientBalance, 7)
	buf, err := report.Serialize()
	require.NoError(t, err)

	got, err := ReadReport(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, ErrorReport, got.MessageType)
	assert.Equal(t, "insufficient balance", got.Err)
	assert.Empty(t, got.Counterparty)

	_, err = ReadReport(bytes.NewReader(buf[:ReportFixedHeaderLen+3]))
	assert.Error(t, err)
}
