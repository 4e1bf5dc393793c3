package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"botforge-backend/internal/models"
)

// Mailer delivers transactional email through an HTTP email API. The provider
// is a black box; when no API URL is configured, sends are logged and dropped.
type Mailer struct {
	apiURL  string
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func NewMailer() *Mailer {
	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Mailer{
		apiURL:  os.Getenv("EMAIL_API_URL"),
		apiKey:  os.Getenv("EMAIL_API_KEY"),
		from:    os.Getenv("EMAIL_FROM"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *Mailer) Send(job models.EmailJob) error {
	if m.apiURL == "" {
		log.Printf("INFO No EMAIL_API_URL configured, dropping %s email to %s", job.Template, job.To)
		return nil
	}

	payload, err := m.buildPayload(job)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email provider error (%d): %s", resp.StatusCode, string(detail))
	}
	return nil
}

func (m *Mailer) buildPayload(job models.EmailJob) (emailPayload, error) {
	switch job.Template {
	case models.EmailVerification:
		return emailPayload{
			From:    m.from,
			To:      job.To,
			Subject: "Verify your email",
			Text: "Welcome! Confirm your email address by visiting:\n\n" +
				m.baseURL + "/verify-email?token=" + job.Token,
		}, nil
	case models.EmailPasswordReset:
		return emailPayload{
			From:    m.from,
			To:      job.To,
			Subject: "Reset your password",
			Text: "A password reset was requested for this address. Reset it here:\n\n" +
				m.baseURL + "/reset-password?token=" + job.Token +
				"\n\nIf this wasn't you, ignore this email.",
		}, nil
	default:
		return emailPayload{}, fmt.Errorf("unknown email template %q", job.Template)
	}
}
