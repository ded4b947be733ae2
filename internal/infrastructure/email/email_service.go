package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// EmailConfig holds email service configuration
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	CompanyName    string
}

// EmailService implements account notifications over SendGrid.
type EmailService struct {
	config    *EmailConfig
	logger    *logrus.Logger
	client    *sendgrid.Client
	templates map[string]*template.Template
}

const lowBalanceTemplate = `
<html><body>
<h2>{{.CompanyName}}</h2>
<p>Your credit balance is running low: <strong>{{.Balance}}</strong> credit(s) left.</p>
<p>Top up to keep generating stories, quizzes and worksheets for your kids.</p>
</body></html>`

const capReachedTemplate = `
<html><body>
<h2>{{.CompanyName}}</h2>
<p>You have reached your monthly earning cap of <strong>{{.MonthlyCap}}</strong> bonus credits.</p>
<p>Earning resets at the start of next month.</p>
</body></html>`

// NewEmailService creates a new email service instance
func NewEmailService(config *EmailConfig, logger *logrus.Logger) (ports.EmailService, error) {
	client := sendgrid.NewSendClient(config.SendGridAPIKey)

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	return &EmailService{
		config:    config,
		logger:    logger,
		client:    client,
		templates: templates,
	}, nil
}

func loadTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	for name, body := range map[string]string{
		"low_balance": lowBalanceTemplate,
		"cap_reached": capReachedTemplate,
	} {
		tmpl, err := template.New(name).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// sendEmail sends an email using SendGrid
func (e *EmailService) sendEmail(to, subject, htmlContent string) error {
	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	recipient := mail.NewEmail("", to)

	message := mail.NewSingleEmail(from, subject, recipient, "", htmlContent)

	response, err := e.client.Send(message)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
			"error":   err,
		}).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"to":          to,
		"subject":     subject,
		"status_code": response.StatusCode,
	}).Info("Email sent successfully")

	return nil
}

func (e *EmailService) renderTemplate(templateName string, data interface{}) (string, error) {
	tmpl, exists := e.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// LowBalanceData holds data for the low balance template
type LowBalanceData struct {
	CompanyName string
	Balance     int
}

// CapReachedData holds data for the cap reached template
type CapReachedData struct {
	CompanyName string
	MonthlyCap  float64
}

// SendLowBalanceAlert notifies an account holder their credits are nearly
// spent.
func (e *EmailService) SendLowBalanceAlert(ctx context.Context, email string, accountID uuid.UUID, balance int) error {
	html, err := e.renderTemplate("low_balance", LowBalanceData{
		CompanyName: e.config.CompanyName,
		Balance:     balance,
	})
	if err != nil {
		return err
	}
	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{"account_id": accountID, "balance": balance}).Debug("sending low balance alert")
	}
	return e.sendEmail(email, fmt.Sprintf("%s - Your credits are running low", e.config.CompanyName), html)
}

// SendCapReachedNotice notifies an account holder they hit their monthly
// bonus cap.
func (e *EmailService) SendCapReachedNotice(ctx context.Context, email string, accountID uuid.UUID, monthlyCap float64) error {
	html, err := e.renderTemplate("cap_reached", CapReachedData{
		CompanyName: e.config.CompanyName,
		MonthlyCap:  monthlyCap,
	})
	if err != nil {
		return err
	}
	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{"account_id": accountID, "cap": monthlyCap}).Debug("sending cap reached notice")
	}
	return e.sendEmail(email, fmt.Sprintf("%s - Monthly bonus cap reached", e.config.CompanyName), html)
}
