package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Outbound is one rendered reminder addressed to a WhatsApp number.
type Outbound struct {
	Phone     string
	Text      string
	SessionID string // bridge session owning the WhatsApp connection
}

// SendResult is the bridge's verdict. Success=false with a nil error means the
// bridge answered but refused the message.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, out Outbound) (SendResult, error)
}

type bridgeRequest struct {
	Number    string `json:"number"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type bridgeResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// BridgeProvider talks to the WhatsApp HTTP bridge (POST {baseURL}{sendPath}).
type BridgeProvider struct {
	name     string
	baseURL  string
	sendPath string
	client   *http.Client
	br       *MicroBreaker
}

func NewBridgeProvider(
	name, baseURL, sendPath string,
	timeoutMs, failThreshold, openForMs int,
) *BridgeProvider {
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}

	if openForMs <= 0 {
		openForMs = 30000
	}

	if sendPath == "" {
		sendPath = "/send-message"
	}

	return &BridgeProvider{
		name:     name,
		baseURL:  baseURL,
		sendPath: sendPath,
		client:   &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:       NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *BridgeProvider) Name() string  { return p.name }
func (p *BridgeProvider) Ready() bool   { return p.br.Ready() }
func (p *BridgeProvider) Acquire() bool { return p.br.TryAcquire() }

// Send records transport failures on the breaker. A refusal from a reachable
// bridge leaves the breaker closed.
func (p *BridgeProvider) Send(ctx context.Context, out Outbound) (SendResult, error) {
	res, err := p.post(ctx, out)
	if err != nil {
		p.br.OnFailure()
		if st := p.br.State(); st != "closed" {
			err = fmt.Errorf("%w (breaker %s)", err, st)
		}
		return SendResult{}, err
	}

	p.br.OnSuccess()

	return res, nil
}

func (p *BridgeProvider) post(ctx context.Context, out Outbound) (SendResult, error) {
	b, err := json.Marshal(bridgeRequest{Number: out.Phone, Message: out.Text, SessionID: out.SessionID})
	if err != nil {
		return SendResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.sendPath, bytes.NewReader(b))
	if err != nil {
		return SendResult{}, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return SendResult{}, err
	}

	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return SendResult{}, err
	}

	var br bridgeResponse
	decodeErr := json.Unmarshal(body, &br)

	if res.StatusCode >= 500 {
		if decodeErr == nil && br.Error != "" {
			return SendResult{}, fmt.Errorf("bridge=%s status=%d: %s", p.name, res.StatusCode, br.Error)
		}
		return SendResult{}, fmt.Errorf("bridge=%s status=%d", p.name, res.StatusCode)
	}
	if decodeErr != nil {
		return SendResult{}, fmt.Errorf("bridge=%s status=%d: decode response: %w", p.name, res.StatusCode, decodeErr)
	}
	if res.StatusCode/100 != 2 && br.Error == "" {
		br.Error = fmt.Sprintf("status %d", res.StatusCode)
	}

	return SendResult{Success: br.Success && res.StatusCode/100 == 2, MessageID: br.MessageID, Error: br.Error}, nil
}
