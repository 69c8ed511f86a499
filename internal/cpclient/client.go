// Package cpclient talks to the charge-point management system's message API.
// All calls are addressed by station id and tenant id; responses answer with
// {"success": bool} and a payload this service mostly ignores.
package cpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"evpay/internal/models"
	"evpay/internal/ocpp"
	"evpay/internal/services"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

var _ services.ChargePointAuthority = (*Client)(nil)

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c *Client) RequestStart(ctx context.Context, req services.RemoteStart) (models.RemoteStartStatus, error) {
	body := map[string]any{
		"remoteStartId": req.RemoteStartId,
		"idToken":       req.IdToken,
	}
	if req.EvseId != nil {
		body["evseId"] = *req.EvseId
	}
	resp, err := c.post(ctx, req.StationId, req.TenantId, "evdriver/requestStartTransaction", body)
	if err != nil {
		return models.RemoteStartRejected, err
	}
	if resp.Success {
		return models.RemoteStartAccepted, nil
	}
	return models.RemoteStartRejected, nil
}

// UpsertAuthorization registers a central idToken with the charge-point
// management system so a subsequent remote start authorizes against it.
func (c *Client) UpsertAuthorization(ctx context.Context, stationId, tenantId string, token ocpp.IdToken, attributes map[string]string) error {
	body := map[string]any{
		"idToken":     token,
		"idTokenInfo": map[string]any{"status": "Accepted"},
	}
	if len(attributes) > 0 {
		body["additionalInfo"] = attributes
	}
	_, err := c.post(ctx, stationId, tenantId, "evdriver/authorization", body)
	return err
}

func (c *Client) SetDisplayMessage(ctx context.Context, stationId, tenantId string, messageId int, transactionId, contentURL string) error {
	body := map[string]any{
		"message": map[string]any{
			"id":            messageId,
			"priority":      "AlwaysFront",
			"transactionId": transactionId,
			"message": map[string]any{
				"format":  "URI",
				"content": contentURL,
			},
		},
	}
	_, err := c.post(ctx, stationId, tenantId, "configuration/setDisplayMessage", body)
	return err
}

func (c *Client) ClearDisplayMessage(ctx context.Context, stationId, tenantId string, messageId int) error {
	_, err := c.post(ctx, stationId, tenantId, "configuration/clearDisplayMessage", map[string]any{"id": messageId})
	return err
}

func (c *Client) post(ctx context.Context, stationId, tenantId, path string, payload any) (*apiResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	reqURL := fmt.Sprintf("%s/%s?identifier=%s&tenantId=%s",
		c.BaseURL, path, url.QueryEscape(stationId), url.QueryEscape(tenantId))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cpms %s: status %d: %s", path, resp.StatusCode, b)
	}
	var out apiResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("cpms %s: malformed response: %w", path, err)
	}
	return &out, nil
}
