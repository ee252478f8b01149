// Package notify is the best-effort side channel of the order pipeline.
// Once an order has committed, its id is handed to the dispatcher and the
// request returns; rendering and mailing the invoice happen on a worker
// goroutine, and every failure there is logged and swallowed. The order is
// the source of truth; notification never rolls it back.
package notify

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/safar/electrostore/internal/invoice"
	"github.com/safar/electrostore/internal/logging"
)

const (
	queueSize   = 64
	sendTimeout = 30 * time.Second
)

type Dispatcher struct {
	db     *sql.DB
	mailer *Mailer
	jobs   chan int64
	done   chan struct{}
	log    *slog.Logger
}

func NewDispatcher(db *sql.DB, mailer *Mailer) *Dispatcher {
	return &Dispatcher{
		db:     db,
		mailer: mailer,
		jobs:   make(chan int64, queueSize),
		done:   make(chan struct{}),
		log:    logging.New("notify"),
	}
}

// Start launches the worker. Call Stop to drain and shut down.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for orderID := range d.jobs {
			d.send(orderID)
		}
	}()
}

// Enqueue hands off an order id without ever blocking the caller. When the
// queue is full the notification is dropped and logged; the order itself is
// already committed and unaffected.
func (d *Dispatcher) Enqueue(orderID int64) {
	select {
	case d.jobs <- orderID:
	default:
		d.log.Warn("notification queue full, dropping order confirmation",
			"order_id", orderID)
	}
}

// Stop drains queued notifications and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	close(d.jobs)
	<-d.done
}

func (d *Dispatcher) send(orderID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	doc, err := invoice.Build(ctx, d.db, orderID)
	if err != nil {
		d.log.Error("build invoice for notification", "order_id", orderID, "error", err)
		return
	}

	pdf, err := invoice.Render(doc)
	if err != nil {
		d.log.Error("render invoice for notification", "order_id", orderID, "error", err)
		return
	}

	if err := d.mailer.SendOrderConfirmation(doc.Order, doc.Customer.Email, doc.Customer.Name, pdf); err != nil {
		d.log.Error("send order confirmation", "order_id", orderID, "error", err)
		return
	}

	d.log.Info("order confirmation dispatched", "order_id", orderID)
}
