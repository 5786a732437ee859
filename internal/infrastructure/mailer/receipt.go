package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"donations/internal/domain"
)

const ReceiptSubject = "Thank you for your donation to Ghana Kendo Federation"

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto;">
  <div style="background: #111827; padding: 24px; text-align: center;">
    <h1 style="color: white; margin: 0;">Ghana Kendo Federation</h1>
  </div>
  <div style="padding: 24px;">
    <h2 style="color: #EF4444; margin-top: 0;">Thank You for Your Donation!</h2>
    <p>Dear {{.DonorName}},</p>
    <p>We are deeply grateful for your generous donation to the Ghana Kendo Federation.</p>
    <div style="background: #F3F4F6; padding: 16px; border-radius: 8px;">
      <p style="margin: 5px 0;"><strong>Donation Type:</strong> {{.DonationType}}</p>
      <p style="margin: 5px 0;"><strong>Amount:</strong> {{.Amount}}</p>
      <p style="margin: 5px 0;"><strong>Transaction Reference:</strong> {{.Reference}}</p>
      <p style="margin: 5px 0;"><strong>Date:</strong> {{.Date}}</p>
    </div>
    <p>This email serves as your official receipt. Please save it for your records.</p>
    <p>Once again, thank you for your support in growing Kendo in Ghana.</p>
  </div>
</body>
</html>
`))

type receiptView struct {
	DonorName    string
	DonationType string
	Amount       string
	Reference    string
	Date         string
}

type ReceiptMailer struct {
	sender EmailSender
}

func NewReceiptMailer(sender EmailSender) *ReceiptMailer {
	return &ReceiptMailer{sender: sender}
}

func (m *ReceiptMailer) SendReceipt(ctx context.Context, r domain.ReceiptPayload) error {
	if r.Email == "" {
		return fmt.Errorf("receipt for %s has no recipient", r.Reference)
	}
	body, err := RenderReceipt(r)
	if err != nil {
		return err
	}
	return m.sender.SendEmail(ctx, r.Email, ReceiptSubject, body)
}

func RenderReceipt(r domain.ReceiptPayload) (string, error) {
	view := receiptView{
		DonorName:    r.DonorName,
		DonationType: r.DonationType,
		Amount:       FormatAmount(r.Amount, r.Currency),
		Reference:    r.Reference,
		Date:         time.Now().UTC().Format("January 2, 2006"),
	}
	if view.DonorName == "" {
		view.DonorName = "Valued Supporter"
	}
	if view.DonationType == "" {
		view.DonationType = domain.DefaultDonationType
	}
	if r.PaidAt != nil {
		view.Date = r.PaidAt.UTC().Format("January 2, 2006")
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.String(), nil
}

func FormatAmount(amount float64, currency string) string {
	switch currency {
	case "", "GHS":
		return fmt.Sprintf("GH₵%.2f", amount)
	case "USD":
		return fmt.Sprintf("$%.2f", amount)
	default:
		return fmt.Sprintf("%s %.2f", currency, amount)
	}
}
