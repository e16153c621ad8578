package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"solex/internal/common"
	solexNet "solex/internal/net"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['register', 'deposit', 'withdraw', 'place', 'heartbeat']")

	// Order Parameters
	asset := flag.String("asset", "SOL", "Asset traded, or moved for deposit and withdraw (max 4 chars)")
	quote := flag.String("quote", "USDC", "Quote asset the price is denominated in")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit', 'market' or 'fok'")
	price := flag.Float64("price", 100.0, "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Funds Parameters
	amount := flag.Float64("amount", 0, "Amount to deposit or withdraw")
	wait := flag.Duration("wait", 0, "Keep listening for reports this long after sending (0 waits forever)")

	flag.Parse()

	// Validation
	if *owner == "" && *action != "heartbeat" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	side, err := common.ParseSide(*sideStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid side")
	}
	orderType, err := common.ParseOrderType(*typeStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid order type")
	}

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverAddr).Msg("failed to connect to server")
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	// Start Listening for Reports (Async)
	go readReports(conn)

	var messages []solexNet.Message
	switch strings.ToLower(*action) {
	case "register":
		messages = append(messages, &solexNet.CreateUserMessage{Username: *owner})

	case "deposit", "withdraw":
		typeOf := solexNet.Deposit
		if strings.ToLower(*action) == "withdraw" {
			typeOf = solexNet.Withdraw
		}
		messages = append(messages, &solexNet.AccountMessage{
			BaseMessage: solexNet.BaseMessage{TypeOf: typeOf},
			Asset:       strings.ToUpper(*asset),
			Amount:      *amount,
			Username:    *owner,
		})

	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			messages = append(messages, &solexNet.NewOrderMessage{
				OrderType:  orderType,
				Asset:      strings.ToUpper(*asset),
				QuoteAsset: strings.ToUpper(*quote),
				Price:      *price,
				Quantity:   q,
				Side:       side,
				Username:   *owner,
			})
		}

	case "heartbeat":
		messages = append(messages, solexNet.BaseMessage{TypeOf: solexNet.Heartbeat})

	default:
		log.Fatal().Str("action", *action).Msg("unknown action")
	}

	// Execute Action
	for _, message := range messages {
		if err := send(conn, message); err != nil {
			log.Error().Err(err).Str("type", message.GetType().String()).Msg("failed to send message")
			continue
		}
		fmt.Printf("-> Sent %s\n", describe(message))
	}

	// Keep the client alive to receive reports
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	if *wait > 0 {
		time.Sleep(*wait)
		return
	}
	select {}
}

// parseQuantities splits a comma-separated string into a slice of float64
func parseQuantities(input string) []float64 {
	parts := strings.Split(input, ",")
	var result []float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseFloat(p, 64); err == nil && val > 0 {
			result = append(result, val)
		} else {
			log.Warn().Str("quantity", p).Msg("invalid quantity, skipping")
		}
	}
	return result
}

func send(conn net.Conn, message solexNet.Message) error {
	buf, err := message.Encode()
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

func describe(message solexNet.Message) string {
	switch m := message.(type) {
	case *solexNet.NewOrderMessage:
		return fmt.Sprintf("%s %v Order: %s/%s %g @ %g", m.OrderType, m.Side, m.Asset, m.QuoteAsset, m.Quantity, m.Price)
	case *solexNet.AccountMessage:
		return fmt.Sprintf("%s of %g %s", m.TypeOf, m.Amount, m.Asset)
	case *solexNet.CreateUserMessage:
		return fmt.Sprintf("registration for %s", m.Username)
	}
	return message.GetType().String()
}

// readReports continuously reads and prints reports from the server
func readReports(conn net.Conn) {
	for {
		report, err := solexNet.ReadReport(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Msg("connection lost")
			}
			os.Exit(0)
		}

		switch report.MessageType {
		case solexNet.ErrorReport:
			fmt.Printf("\n[SERVER ERROR] %s\n", report.Err)
		case solexNet.AckReport:
			if report.UUID != "" {
				fmt.Printf("\n[ACK] Order %s | Filled: %g @ limit %g\n", report.UUID, report.Quantity, report.Price)
			} else {
				fmt.Printf("\n[ACK] %s %g\n", report.Asset, report.Quantity)
			}
		default:
			fmt.Printf("\n[EXECUTION] Match: %v %s | Qty: %g | Price: %g | vs: %s | UUID: %s\n",
				report.Side, report.Asset, report.Quantity, report.Price, report.Counterparty, report.UUID)
		}
	}
}
