package notify

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/safar/electrostore/internal/config"
	"github.com/safar/electrostore/internal/logging"
	"github.com/safar/electrostore/internal/models"
	"gopkg.in/gomail.v2"
)

// Mailer sends order confirmations over SMTP. With no host configured it
// logs and skips, so local setups work without a mail server.
type Mailer struct {
	cfg config.SMTPConfig
	log *slog.Logger
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, log: logging.New("mailer")}
}

func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendOrderConfirmation emails the customer with the invoice attached.
func (m *Mailer) SendOrderConfirmation(order *models.Order, toEmail, toName string, invoicePDF []byte) error {
	if !m.Enabled() {
		m.log.Info("smtp not configured, skipping order confirmation",
			"order_id", order.ID)
		return nil
	}
	if toEmail == "" {
		return fmt.Errorf("order %d has no recipient address", order.ID)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", fmt.Sprintf("ElectroStore: Order #%d Confirmed", order.ID))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hi %s,\n\nThank you for your order #%d. The total charged is %s.\nYour tax invoice is attached.\n\nElectroStore",
		toName, order.ID, order.TotalAmount.StringFixed(2)))
	msg.Attach(fmt.Sprintf("invoice-%d.pdf", order.ID),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(invoicePDF)
			return err
		}))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send order confirmation: %w", err)
	}

	return nil
}
