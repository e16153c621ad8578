package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"solex/internal/common"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrIncompleteMessage  = errors.New("incomplete message")
	ErrUsernameTooLong    = errors.New("username longer than 255 bytes")
	ErrInvalidNumber      = errors.New("number is not finite")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CreateUser
	Deposit
	Withdraw
)

func (t MessageType) String() string {
	switch t {
	case Heartbeat:
		return "HEARTBEAT"
	case NewOrder:
		return "NEW_ORDER"
	case CreateUser:
		return "CREATE_USER"
	case Deposit:
		return "DEPOSIT"
	case Withdraw:
		return "WITHDRAW"
	}
	return fmt.Sprintf("MessageType(%d)", uint16(t))
}

type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
	AckReport
)

type Message interface {
	GetType() MessageType
	Encode() ([]byte, error)
}

// Message format constants. Body lengths exclude the 2 byte type header and
// the trailing username.
const (
	BaseMessageHeaderLen     = 2
	AssetLen                 = 4
	NewOrderMessageHeaderLen = 2 + AssetLen + AssetLen + 8 + 8 + 1 + 1
	AccountMessageHeaderLen  = AssetLen + 8 + 1
	CreateUserMessageLen     = 1
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func (m BaseMessage) Encode() ([]byte, error) {
	buf := make([]byte, BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf, uint16(m.TypeOf))
	return buf, nil
}

// parseMessage decodes the first message in buf and reports how many bytes
// it used. ErrIncompleteMessage means buf holds only part of a message and
// the caller should read more.
func parseMessage(buf []byte) (Message, int, error) {
	if len(buf) < BaseMessageHeaderLen {
		return nil, 0, ErrIncompleteMessage
	}

	typeOf := MessageType(binary.BigEndian.Uint16(buf[0:2]))
	body := buf[BaseMessageHeaderLen:]
	var (
		msg Message
		n   int
		err error
	)
	switch typeOf {
	case Heartbeat:
		msg = BaseMessage{TypeOf: Heartbeat}
	case NewOrder:
		msg, n, err = parseNewOrder(body)
	case CreateUser:
		msg, n, err = parseCreateUser(body)
	case Deposit, Withdraw:
		msg, n, err = parseAccount(typeOf, body)
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidMessageType, uint16(typeOf))
	}
	if err != nil {
		return nil, 0, err
	}
	return msg, BaseMessageHeaderLen + n, nil
}

type NewOrderMessage struct {
	BaseMessage
	OrderType  common.OrderType // 2 bytes
	Asset      string           // 4 bytes
	QuoteAsset string           // 4 bytes
	Price      float64          // 8 bytes
	Quantity   float64          // 8 bytes
	Side       common.Side      // 1 byte
	Username   string           // 1 byte length + n bytes
}

// Order converts the message into an engine order. The engine assigns the
// id and timestamps.
func (m *NewOrderMessage) Order() (common.Order, error) {
	asset, err := common.ParseAsset(m.Asset)
	if err != nil {
		return common.Order{}, err
	}
	var quote common.Asset
	if strings.Trim(m.QuoteAsset, "\x00 ") != "" {
		if quote, err = common.ParseAsset(m.QuoteAsset); err != nil {
			return common.Order{}, err
		}
	}
	price, err := toDecimal(m.Price)
	if err != nil {
		return common.Order{}, fmt.Errorf("%w: price: %w", common.ErrInvalidOrder, err)
	}
	quantity, err := toDecimal(m.Quantity)
	if err != nil {
		return common.Order{}, fmt.Errorf("%w: quantity: %w", common.ErrInvalidOrder, err)
	}

	return common.Order{
		UserID:         m.Username,
		Side:           m.Side,
		OrderType:      m.OrderType,
		Asset:          asset,
		SecondaryAsset: quote,
		Price:          price,
		Quantity:       quantity,
	}, nil
}

func (m *NewOrderMessage) Encode() ([]byte, error) {
	if len(m.Username) > math.MaxUint8 {
		return nil, ErrUsernameTooLong
	}
	buf := make([]byte, BaseMessageHeaderLen+NewOrderMessageHeaderLen+len(m.Username))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	body := buf[BaseMessageHeaderLen:]
	binary.BigEndian.PutUint16(body[0:2], uint16(m.OrderType))
	putAsset(body[2:6], m.Asset)
	putAsset(body[6:10], m.QuoteAsset)
	binary.BigEndian.PutUint64(body[10:18], math.Float64bits(m.Price))
	binary.BigEndian.PutUint64(body[18:26], math.Float64bits(m.Quantity))
	body[26] = byte(m.Side)
	body[27] = uint8(len(m.Username))
	copy(body[28:], m.Username)
	return buf, nil
}

func parseNewOrder(msg []byte) (*NewOrderMessage, int, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return nil, 0, ErrIncompleteMessage
	}
	m := &NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}

	m.OrderType = common.OrderType(binary.BigEndian.Uint16(msg[0:2]))
	m.Asset = readAsset(msg[2:6])
	m.QuoteAsset = readAsset(msg[6:10])
	m.Price = math.Float64frombits(binary.BigEndian.Uint64(msg[10:18]))
	m.Quantity = math.Float64frombits(binary.BigEndian.Uint64(msg[18:26]))
	m.Side = common.Side(msg[26])
	usernameLen := int(msg[27])

	total := NewOrderMessageHeaderLen + usernameLen
	if len(msg) < total {
		return nil, 0, ErrIncompleteMessage
	}
	m.Username = string(msg[NewOrderMessageHeaderLen:total])
	return m, total, nil
}

// AccountMessage moves funds in or out of a user's account. TypeOf is
// either Deposit or Withdraw.
type AccountMessage struct {
	BaseMessage
	Asset    string  // 4 bytes
	Amount   float64 // 8 bytes
	Username string  // 1 byte length + n bytes
}

func (m *AccountMessage) Encode() ([]byte, error) {
	if len(m.Username) > math.MaxUint8 {
		return nil, ErrUsernameTooLong
	}
	buf := make([]byte, BaseMessageHeaderLen+AccountMessageHeaderLen+len(m.Username))
	binary.BigEndian.PutUint16(buf[0:2], uint16(m.TypeOf))
	body := buf[BaseMessageHeaderLen:]
	putAsset(body[0:4], m.Asset)
	binary.BigEndian.PutUint64(body[4:12], math.Float64bits(m.Amount))
	body[12] = uint8(len(m.Username))
	copy(body[13:], m.Username)
	return buf, nil
}

func parseAccount(typeOf MessageType, msg []byte) (*AccountMessage, int, error) {
	if len(msg) < AccountMessageHeaderLen {
		return nil, 0, ErrIncompleteMessage
	}
	m := &AccountMessage{BaseMessage: BaseMessage{TypeOf: typeOf}}
	m.Asset = readAsset(msg[0:4])
	m.Amount = math.Float64frombits(binary.BigEndian.Uint64(msg[4:12]))

	total := AccountMessageHeaderLen + int(msg[12])
	if len(msg) < total {
		return nil, 0, ErrIncompleteMessage
	}
	m.Username = string(msg[AccountMessageHeaderLen:total])
	return m, total, nil
}

type CreateUserMessage struct {
	BaseMessage
	Username string // 1 byte length + n bytes
}

func (m *CreateUserMessage) Encode() ([]byte, error) {
	if len(m.Username) > math.MaxUint8 {
		return nil, ErrUsernameTooLong
	}
	buf := make([]byte, BaseMessageHeaderLen+CreateUserMessageLen+len(m.Username))
	binary.BigEndian.PutUint16(buf[0:2], uint16(CreateUser))
	buf[2] = uint8(len(m.Username))
	copy(buf[3:], m.Username)
	return buf, nil
}

func parseCreateUser(msg []byte) (*CreateUserMessage, int, error) {
	if len(msg) < CreateUserMessageLen {
		return nil, 0, ErrIncompleteMessage
	}
	total := CreateUserMessageLen + int(msg[0])
	if len(msg) < total {
		return nil, 0, ErrIncompleteMessage
	}
	return &CreateUserMessage{
		BaseMessage: BaseMessage{TypeOf: CreateUser},
		Username:    string(msg[CreateUserMessageLen:total]),
	}, total, nil
}

type Report struct {
	MessageType  ReportMessageType // 1 byte
	Side         common.Side       // 1 byte
	Timestamp    uint64            // 8 bytes, unix nanoseconds
	Quantity     float64           // 8 bytes
	Price        float64           // 8 bytes
	Asset        string            // 4 bytes
	UUID         string            // 36 bytes
	Err          string            // 4 byte length + n bytes
	Counterparty string            // 2 byte length + n bytes (in this case we show who)
}

const (
	uuidLen              = 36
	ReportFixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 2 + 4 + AssetLen + uuidLen
)

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() ([]byte, error) {
	if len(r.Counterparty) > math.MaxUint16 {
		return nil, fmt.Errorf("counterparty of %d bytes does not fit a report", len(r.Counterparty))
	}
	buf := make([]byte, ReportFixedHeaderLen+len(r.Err)+len(r.Counterparty))
	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[2:10], r.Timestamp)
	binary.BigEndian.PutUint64(buf[10:18], math.Float64bits(r.Quantity))
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(r.Price))
	binary.BigEndian.PutUint16(buf[26:28], uint16(len(r.Counterparty)))
	binary.BigEndian.PutUint32(buf[28:32], uint32(len(r.Err)))
	putAsset(buf[32:36], r.Asset)
	// copy() pads short ids with zeroes and truncates long ones.
	copy(buf[36:72], r.UUID)

	offset := ReportFixedHeaderLen
	offset += copy(buf[offset:], r.Err)
	copy(buf[offset:], r.Counterparty)
	return buf, nil
}

// ReadReport blocks until a whole report has been read off r.
func ReadReport(r io.Reader) (Report, error) {
	header := make([]byte, ReportFixedHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Report{}, err
	}

	report := Report{
		MessageType: ReportMessageType(header[0]),
		Side:        common.Side(header[1]),
		Timestamp:   binary.BigEndian.Uint64(header[2:10]),
		Quantity:    math.Float64frombits(binary.BigEndian.Uint64(header[10:18])),
		Price:       math.Float64frombits(binary.BigEndian.Uint64(header[18:26])),
		Asset:       readAsset(header[32:36]),
		UUID:        strings.TrimRight(string(header[36:72]), "\x00"),
	}
	counterpartyLen := int(binary.BigEndian.Uint16(header[26:28]))
	errLen := int(binary.BigEndian.Uint32(header[28:32]))

	body := make([]byte, errLen+counterpartyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Report{}, fmt.Errorf("unable to read report body: %w", err)
	}
	report.Err = string(body[:errLen])
	report.Counterparty = string(body[errLen:])
	return report, nil
}

// generateWireTradeReports builds one execution report per party, each
// addressed from that party's point of view.
func generateWireTradeReports(trade common.Trade) (buyer, seller Report) {
	create := func(side common.Side, orderID, counterparty string) Report {
		return Report{
			MessageType:  ExecutionReport,
			Side:         side,
			Timestamp:    uint64(trade.Timestamp.UnixNano()),
			Quantity:     trade.Quantity.InexactFloat64(),
			Price:        trade.Price.InexactFloat64(),
			Asset:        trade.Asset.String(),
			UUID:         orderID,
			Counterparty: counterparty,
		}
	}
	return create(common.Buy, trade.BuyOrderID, trade.Seller),
		create(common.Sell, trade.SellOrderID, trade.Buyer)
}

func generateWireErrorReport(err error, timestamp uint64) Report {
	return Report{
		MessageType: ErrorReport,
		Timestamp:   timestamp,
		Err:         err.Error(),
	}
}

func putAsset(dst []byte, asset string) {
	clear(dst)
	copy(dst, asset)
}

func readAsset(src []byte) string {
	return strings.TrimRight(string(src), "\x00")
}

func toDecimal(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, ErrInvalidNumber
	}
	return decimal.NewFromFloat(f), nil
}
