package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"solex/internal/common"
	"solex/internal/config"
	"solex/internal/engine"
	"solex/internal/ledger"
	"solex/internal/utils"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

const (
	MAX_RECV_SIZE       = 4 * 1024
	defaultWriteTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// Exchange is the part of the engine the server drives.
type Exchange interface {
	CreateUser(userID string) ledger.User
	Deposit(userID string, asset common.Asset, amount decimal.Decimal) error
	Withdraw(userID string, asset common.Asset, amount decimal.Decimal) error
	SubmitOrder(order common.Order) (engine.Fill, error)
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session. Only the worker currently holding the session
// touches pending.
type ClientSession struct {
	conn    net.Conn
	address string
	pending []byte
	once    sync.Once
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

type Server struct {
	address     string
	port        int
	readTimeout time.Duration
	exchange    Exchange
	pool        *utils.WorkerPool

	clientSessions     map[string]*ClientSession
	userSessions       map[string]string // user id -> client address
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage

	ready     chan struct{}
	readyOnce sync.Once
	addr      net.Addr
}

func New(cfg config.TCPConfig, exchange Exchange) *Server {
	return &Server{
		address:        cfg.Address,
		port:           cfg.Port,
		readTimeout:    cfg.ReadTimeout,
		exchange:       exchange,
		pool:           utils.NewWorkerPool(cfg.Workers),
		clientSessions: make(map[string]*ClientSession),
		userSessions:   make(map[string]string),
		clientMessages: make(chan ClientMessage, utils.TASK_CHAN_SIZE),
		ready:          make(chan struct{}),
	}
}

// Addr blocks until the server is listening and returns its address, or nil
// if it failed to start.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.addr
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Run serves clients until ctx is cancelled or a worker fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.markReady()
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.addr = listener.Addr()
	s.markReady()

	s.pool.Start(t, s.handleConnection)
	t.Go(func() error {
		return s.sessionHandler(t)
	})
	t.Go(func() error {
		return s.acceptConnections(t, listener)
	})
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeSessions()
		return nil
	})

	log.Info().Str("address", s.addr.String()).Msg("server running")
	err = t.Wait()
	log.Info().Msg("server shut down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptConnections(t *tomb.Tomb, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		// We expect to potentially maintain a long TCP session.
		session := s.addClientSession(conn)
		log.Info().Str("address", session.address).Msg("new client added")

		// Pass over the connection to be read from.
		if err := s.pool.AddTask(t, session); err != nil {
			s.closeSession(session)
			return nil
		}
	}
}

// ReportTrade sends an execution report to each party of the trade that
// has a live session.
func (s *Server) ReportTrade(trade common.Trade) error {
	buyerReport, sellerReport := generateWireTradeReports(trade)
	return errors.Join(
		s.reportToUser(trade.Buyer, buyerReport),
		s.reportToUser(trade.Seller, sellerReport),
	)
}

func (s *Server) reportToUser(userID string, report Report) error {
	s.clientSessionsLock.Lock()
	address, ok := s.userSessions[userID]
	s.clientSessionsLock.Unlock()
	if !ok {
		// Not connected over tcp.
		return nil
	}
	return s.send(address, report)
}

// send writes a report to the client. A failed write drops the session.
func (s *Server) send(address string, report Report) error {
	buf, err := report.Serialize()
	if err != nil {
		return err
	}

	s.clientSessionsLock.Lock()
	session, ok := s.clientSessions[address]
	if !ok {
		s.clientSessionsLock.Unlock()
		return fmt.Errorf("%w: %s", ErrClientDoesNotExist, address)
	}
	err = session.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err == nil {
		_, err = session.conn.Write(buf)
	}
	s.clientSessionsLock.Unlock()

	if err != nil {
		s.closeSession(session)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler reads off incoming messages from clients and applies them
// to the exchange one at a time. Messages are received from the pool of
// workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			log.Debug().
				Str("address", message.clientAddress).
				Str("type", message.message.GetType().String()).
				Msg("new message")
			report := s.handleMessage(message)
			if err := s.send(message.clientAddress, report); err != nil {
				log.Debug().Err(err).Str("address", message.clientAddress).Msg("unable to reply")
			}
		}
	}
}

// handleMessage applies one client message and returns the reply. Execution
// reports for any trades are sent before the reply.
func (s *Server) handleMessage(message ClientMessage) Report {
	now := uint64(time.Now().UnixNano())
	fail := func(err error) Report {
		log.Info().Err(err).Str("address", message.clientAddress).Msg("request rejected")
		return generateWireErrorReport(err, now)
	}
	ack := Report{MessageType: AckReport, Timestamp: now}

	switch m := message.message.(type) {
	case BaseMessage:
		return ack

	case *CreateUserMessage:
		if m.Username == "" {
			return fail(fmt.Errorf("%w: empty username", common.ErrUnknownUser))
		}
		s.bindUser(m.Username, message.clientAddress)
		s.exchange.CreateUser(m.Username)
		return ack

	case *AccountMessage:
		asset, err := common.ParseAsset(m.Asset)
		if err != nil {
			return fail(err)
		}
		amount, err := toDecimal(m.Amount)
		if err != nil {
			return fail(fmt.Errorf("%w: %w", common.ErrInvalidAmount, err))
		}
		s.bindUser(m.Username, message.clientAddress)
		if m.TypeOf == Deposit {
			err = s.exchange.Deposit(m.Username, asset, amount)
		} else {
			err = s.exchange.Withdraw(m.Username, asset, amount)
		}
		if err != nil {
			return fail(err)
		}
		ack.Asset = asset.String()
		ack.Quantity = m.Amount
		return ack

	case *NewOrderMessage:
		order, err := m.Order()
		if err != nil {
			return fail(err)
		}
		s.bindUser(m.Username, message.clientAddress)
		fill, err := s.exchange.SubmitOrder(order)
		if err != nil {
			return fail(err)
		}
		ack.Side = order.Side
		ack.Asset = order.Asset.String()
		ack.UUID = fill.OrderID
		ack.Quantity = fill.FilledQuantity.InexactFloat64()
		ack.Price = m.Price
		return ack
	}
	return fail(ErrInvalidMessageType)
}

// handleConnection is a short-lived worker method which reads what is
// available on the connection, parses every complete message and passes
// them forward to sessionHandler. Partial messages stay buffered on the
// session until the next read. If the connection dies, the client session
// is cleaned up; otherwise it goes back on the queue.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}

	select {
	case <-t.Dying():
		s.closeSession(session)
		return nil
	default:
	}

	// Set max read timeout so an idle client does not hold the worker.
	if err := session.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		log.Error().
			Str("address", session.address).
			Err(err).
			Msg("failed setting deadline for connection")
		s.closeSession(session)
		return nil
	}

	buffer := make([]byte, MAX_RECV_SIZE)
	n, readErr := session.conn.Read(buffer)
	session.pending = append(session.pending, buffer[:n]...)

	if err := s.drain(t, session); err != nil {
		log.Error().
			Err(err).
			Str("address", session.address).
			Msg("error parsing message")
		// The stream cannot be resynchronised after a bad frame.
		_ = s.send(session.address, generateWireErrorReport(err, uint64(time.Now().UnixNano())))
		s.closeSession(session)
		return nil
	}

	if readErr != nil {
		var netErr net.Error
		if !errors.As(readErr, &netErr) || !netErr.Timeout() {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, net.ErrClosed) {
				log.Info().Str("address", session.address).Msg("client disconnected")
			} else {
				log.Error().
					Err(readErr).
					Str("address", session.address).
					Msg("error reading from connection")
			}
			s.closeSession(session)
			return nil
		}
	}

	// Push the client connection back to handle the next message.
	if !s.pool.TryAddTask(session) {
		go func() {
			if err := s.pool.AddTask(t, session); err != nil {
				s.closeSession(session)
			}
		}()
	}
	return nil
}

// drain forwards every complete message buffered on the session.
func (s *Server) drain(t *tomb.Tomb, session *ClientSession) error {
	consumed := 0
	defer func() {
		session.pending = append(session.pending[:0], session.pending[consumed:]...)
	}()

	for {
		message, n, err := parseMessage(session.pending[consumed:])
		if errors.Is(err, ErrIncompleteMessage) {
			return nil
		}
		if err != nil {
			return err
		}
		consumed += n

		select {
		case <-t.Dying():
			return nil
		case s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: session.address,
		}:
		}
	}
}

// bindUser routes the user's execution reports to the client.
func (s *Server) bindUser(userID, address string) {
	if userID == "" {
		return
	}
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	if _, ok := s.clientSessions[address]; ok {
		s.userSessions[userID] = address
	}
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) *ClientSession {
	session := &ClientSession{
		conn:    conn,
		address: conn.RemoteAddr().String(),
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[session.address] = session
	return session
}

// closeSession removes the session along with the users bound to it and
// closes the connection.
func (s *Server) closeSession(session *ClientSession) {
	s.clientSessionsLock.Lock()
	if current, ok := s.clientSessions[session.address]; ok && current == session {
		delete(s.clientSessions, session.address)
		for user, address := range s.userSessions {
			if address == session.address {
				delete(s.userSessions, user)
			}
		}
	}
	s.clientSessionsLock.Unlock()

	session.once.Do(func() {
		if err := session.conn.Close(); err != nil {
			log.Error().Err(err).Str("address", session.address).Msg("unable to close connection")
		}
	})
}

func (s *Server) closeSessions() {
	s.clientSessionsLock.Lock()
	sessions := make([]*ClientSession, 0, len(s.clientSessions))
	for _, session := range s.clientSessions {
		sessions = append(sessions, session)
	}
	s.clientSessionsLock.Unlock()

	for _, session := range sessions {
		s.closeSession(session)
	}
}
