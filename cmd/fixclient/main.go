package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

// InitiatorApp logs on to the auction's FIX gateway, sends a burst of limit
// orders with some cancels and counts what comes back.
type InitiatorApp struct {
	orders      int
	cancelEvery int

	acks, cancels, rejects, sessionRejects atomic.Int64
	done                                   chan struct{}
}

func (a *InitiatorApp) OnCreate(sessionID quickfix.SessionID) {}

func (a *InitiatorApp) OnLogon(sessionID quickfix.SessionID) {
	log.Println("Logon success", sessionID)
	go a.send(sessionID)
}

func (a *InitiatorApp) OnLogout(sessionID quickfix.SessionID)                       {}
func (a *InitiatorApp) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}
func (a *InitiatorApp) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

func (a *InitiatorApp) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	if msg.IsMsgTypeOf(string(enum.MsgType_REJECT)) {
		a.sessionRejects.Add(1)
	}
	return nil
}

func (a *InitiatorApp) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	switch {
	case msg.IsMsgTypeOf(string(enum.MsgType_EXECUTION_REPORT)):
		execType, err := msg.Body.GetString(tag.ExecType)
		if err != nil {
			return err
		}
		if execType == string(enum.ExecType_CANCELED) {
			a.cancels.Add(1)
		} else {
			a.acks.Add(1)
		}
	case msg.IsMsgTypeOf(string(enum.MsgType_ORDER_CANCEL_REJECT)):
		a.rejects.Add(1)
	}
	return nil
}

type sentOrder struct {
	clOrdID string
	side    enum.Side
	price   decimal.Decimal
	qty     int64
}

func (a *InitiatorApp) send(sessionID quickfix.SessionID) {
	defer close(a.done)

	start := time.Now()
	var last sentOrder
	for i := 0; i < a.orders; i++ {
		o := randomOrder()
		nos := fix44nos.New(
			field.NewClOrdID(o.clOrdID),
			field.NewSide(o.side),
			field.NewTransactTime(time.Now()),
			field.NewOrdType(enum.OrdType_LIMIT))
		nos.SetSymbol("FBA")
		nos.SetPrice(o.price, 2)
		nos.SetOrderQty(decimal.NewFromInt(o.qty), 0)
		if err := quickfix.SendToTarget(nos, sessionID); err != nil {
			log.Println("send order:", err)
		}

		if a.cancelEvery > 0 && i > 0 && i%a.cancelEvery == 0 {
			ocr := fix44ocr.New(
				field.NewOrigClOrdID(last.clOrdID),
				field.NewClOrdID(randSeq(17)),
				field.NewSide(last.side),
				field.NewTransactTime(time.Now()))
			ocr.SetSymbol("FBA")
			ocr.Body.Set(field.NewPrice(last.price, 2))
			ocr.SetOrderQty(decimal.NewFromInt(last.qty), 0)
			if err := quickfix.SendToTarget(ocr, sessionID); err != nil {
				log.Println("send cancel:", err)
			}
		}
		last = o
	}

	elapsed := time.Since(start)
	log.Printf("Sent %d orders in %v (%.2f orders/sec)", a.orders, elapsed, float64(a.orders)/elapsed.Seconds())
}

func randomOrder() sentOrder {
	side := enum.Side_BUY
	if rand.Intn(2) == 0 {
		side = enum.Side_SELL
	}
	return sentOrder{
		clOrdID: randSeq(17),
		side:    side,
		price:   decimal.NewFromFloat(95 + rand.Float64()*10).Round(2),
		qty:     int64(rand.Intn(100) + 1),
	}
}

func main() {
	var (
		cfgPath     string
		orders      int
		cancelEvery int
	)
	flag.StringVar(&cfgPath, "config-file", "./config/fixclient.cfg", "quickfix initiator settings")
	flag.IntVar(&orders, "orders", 10_000, "Orders to send after logon")
	flag.IntVar(&cancelEvery, "cancel-every", 10, "Cancel the previous order every n orders, 0 disables")
	flag.Parse()

	app := &InitiatorApp{orders: orders, cancelEvery: cancelEvery, done: make(chan struct{})}

	cfg, err := os.Open(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	defer cfg.Close() // nolint

	settings, err := quickfix.ParseSettings(cfg)
	if err != nil {
		log.Fatal(err)
	}

	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		log.Fatal(err)
	}
	initiator, err := quickfix.NewInitiator(app, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		log.Fatal(err)
	}
	if err := initiator.Start(); err != nil {
		log.Fatal(err)
	}
	defer initiator.Stop()
	log.Println("Initiator started...")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-app.done:
		// give the acceptor time to answer the tail of the burst
		time.Sleep(2 * time.Second)
	case <-sigs:
	}

	log.Printf("acks=%d canceled=%d cancel_rejects=%d session_rejects=%d",
		app.acks.Load(), app.cancels.Load(), app.rejects.Load(), app.sessionRejects.Load())
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
