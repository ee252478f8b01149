package notify

import (
	"testing"

	"github.com/safar/electrostore/internal/config"
	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMailerDisabledWithoutHost(t *testing.T) {
	mailer := NewMailer(config.SMTPConfig{})
	assert.False(t, mailer.Enabled())

	order := &models.Order{ID: 7, TotalAmount: decimal.NewFromInt(100)}
	err := mailer.SendOrderConfirmation(order, "a@b.c", "A", []byte("%PDF-"))
	assert.NoError(t, err, "disabled mailer should skip, not fail")
}

func TestMailerRejectsMissingRecipient(t *testing.T) {
	mailer := NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587})

	order := &models.Order{ID: 7, TotalAmount: decimal.NewFromInt(100)}
	err := mailer.SendOrderConfirmation(order, "", "", []byte("%PDF-"))
	assert.Error(t, err)
}
