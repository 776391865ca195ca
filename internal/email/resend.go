// Package email sends transactional mail through the Resend REST API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const baseURL = "https://api.resend.com"

// ResendClient is a thin wrapper around Resend's JSON-over-HTTP API.  The
// flows treat a send as a fallible remote call with no retry: a failure
// aborts the enclosing operation and surfaces as 502 upstream failure.
type ResendClient struct {
	apiKey string
	from   string
	http   *http.Client
}

func NewResendClient(apiKey, from string) *ResendClient {
	return &ResendClient{
		apiKey: apiKey,
		from:   from,
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendLink emails the magic-link login button to the given address.
func (c *ResendClient) SendLink(ctx context.Context, to, link string) error {
	return c.sendButton(ctx, to,
		"Your magic link",
		"Click the button below to login:",
		"Login",
		link,
		"This link will expire in 5 minutes.")
}

func (c *ResendClient) sendButton(ctx context.Context, to, subject, hint, buttonText, buttonLink, ignoreText string) error {
	html := fmt.Sprintf(
		`<h2 style="font-family: Arial, sans-serif;">%s</h2>`+
			`<p style="font-family: Arial, sans-serif;">%s</p>`+
			`<p><a href=%q style="display: inline-block; padding: 10px 20px; `+
			`font-family: Arial, sans-serif; font-size: 16px; color: #ffffff; `+
			`background-color: #52528C; text-decoration: none; border-radius: 5px;">%s</a></p>`+
			`<p style="font-family: Arial, sans-serif; font-size: 12px; color: #6c757d;"><i>%s</i></p>`,
		subject, hint, buttonLink, buttonText, ignoreText)
	return c.send(ctx, sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
}

func (c *ResendClient) send(ctx context.Context, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resend: unexpected status %d", resp.StatusCode)
	}
	return nil
}
