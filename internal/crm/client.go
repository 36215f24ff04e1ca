// Package crm предоставляет клиент для CRM-системы, сообщающей этапы доставки заказов.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с CRM.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// DeliveryStatus описывает ответ CRM по одному заказу.
type DeliveryStatus struct {
	Order  string   `json:"order"`
	Stages []string `json:"stages"`
}

// Result: результат запроса статуса доставки.
// Status == nil означает, что CRM пока ничего не знает о заказе или просит повторить позже.
type Result struct {
	Status     *DeliveryStatus
	StatusCode int
	RetryAfter time.Duration
}

// NewClient создаёт HTTP-клиент для обращения к CRM по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetDeliveryStatus запрашивает завершённые этапы доставки для указанного номера заказа.
func (c *Client) GetDeliveryStatus(ctx context.Context, number string) (Result, error) {
	if c == nil || c.baseURL == "" {
		return Result{}, fmt.Errorf("crm client not configured")
	}

	endpoint := fmt.Sprintf("%s/api/deliveries/%s", c.baseURL, url.PathEscape(number))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		res := Result{StatusCode: resp.StatusCode}
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				res.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
		return res, nil
	case http.StatusNoContent, http.StatusNotFound:
		return Result{StatusCode: resp.StatusCode}, nil
	case http.StatusOK:
	default:
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var status DeliveryStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("decode response: %w", err)
	}

	return Result{Status: &status, StatusCode: resp.StatusCode}, nil
}
