package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioProvider places and terminates calls over the Twilio REST API.
// No SDK; the two endpoints we need are plain form-encoded POSTs.

const twilioDefaultBaseURL = "https://api.twilio.com"

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// BaseURL overrides the Twilio API host, for tests.
	BaseURL string
	Timeout time.Duration
}

func (c TwilioConfig) withDefaults() TwilioConfig {
	if c.BaseURL == "" {
		c.BaseURL = twilioDefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

type TwilioProvider struct {
	cfg    TwilioConfig
	client *http.Client
}

func NewTwilioProvider(cfg TwilioConfig) (*TwilioProvider, error) {
	cfg = cfg.withDefaults()
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("telephony: twilio from number required")
	}
	return &TwilioProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	// Fetching the account resource is the cheapest authenticated call.
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", p.cfg.BaseURL, p.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: account fetch returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.To == "" {
		return PlaceCallResult{}, errors.New("telephony: destination number required")
	}
	if req.VoiceURL == "" {
		return PlaceCallResult{}, errors.New("telephony: voice url required")
	}
	from := req.From
	if from == "" {
		from = p.cfg.FromNumber
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", from)
	form.Set("Url", req.VoiceURL)
	form.Set("Method", http.MethodPost)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.cfg.BaseURL, p.cfg.AccountSID)
	if err := p.post(ctx, endpoint, form, &out); err != nil {
		return PlaceCallResult{}, err
	}
	return PlaceCallResult{
		ProviderCallID: out.Sid,
		Status:         CallStatus(out.Status),
	}, nil
}

func (p *TwilioProvider) Terminate(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return errors.New("telephony: provider call id required")
	}
	form := url.Values{}
	form.Set("Status", "completed")
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", p.cfg.BaseURL, p.cfg.AccountSID, providerCallID)
	return p.post(ctx, endpoint, form, nil)
}

func (p *TwilioProvider) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telephony: twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("telephony: decode twilio response: %w", err)
		}
	}
	return nil
}
