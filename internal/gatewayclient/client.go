package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"csms/internal/models"
	"csms/internal/repo"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
)

// Client delivers outbound commands to the charge-point gateway, which owns
// the websocket and forwards the call. Each send is recorded in the command
// audit trail when a repo is attached.
type Client struct {
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	Commands *repo.CommandsRepo
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) StopTransaction(ctx context.Context, chargePointID string, req *core.StopTransactionRequest) (*core.StopTransactionConfirmation, error) {
	var conf core.StopTransactionConfirmation
	if err := c.send(ctx, chargePointID, core.StopTransactionFeatureName, req, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) StatusNotification(ctx context.Context, chargePointID string, req *core.StatusNotificationRequest) (*core.StatusNotificationConfirmation, error) {
	var conf core.StatusNotificationConfirmation
	if err := c.send(ctx, chargePointID, core.StatusNotificationFeatureName, req, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) send(ctx context.Context, chargePointID, action string, payload, out any) error {
	body, err := json.Marshal(map[string]any{"action": action, "payload": payload})
	if err != nil {
		return err
	}

	var commandID string
	if c.Commands != nil {
		commandID, err = c.Commands.Create(ctx, models.Command{
			ChargePointID: chargePointID,
			Action:        action,
			PayloadJSON:   body,
			Status:        "Queued",
		})
		if err != nil {
			return err
		}
		_ = c.Commands.MarkSent(ctx, commandID)
	}

	status, respBody, err := c.post(ctx, chargePointID, body)
	if err != nil {
		c.markFailed(ctx, commandID, err.Error())
		return err
	}
	if status < 200 || status >= 300 {
		c.markFailed(ctx, commandID, string(respBody))
		return fmt.Errorf("gateway returned %d: %s", status, respBody)
	}

	if c.Commands != nil && commandID != "" {
		_ = c.Commands.MarkAcked(ctx, commandID, respBody)
	}
	if out != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

func (c *Client) post(ctx context.Context, chargePointID string, body []byte) (int, []byte, error) {
	url := fmt.Sprintf("%s/v1/chargepoints/%s/commands", c.BaseURL, chargePointID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

func (c *Client) markFailed(ctx context.Context, commandID, msg string) {
	if c.Commands != nil && commandID != "" {
		_ = c.Commands.MarkFailed(ctx, commandID, msg)
	}
}
