// Package display содержит клиент кухонного экрана, опрашивающий сервер заказов.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с сервером заказов.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Item описывает позицию тикета.
type Item struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Restriction string `json:"restriction,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Order описывает заказ на экране.
type Order struct {
	Number       string `json:"number"`
	Table        *int   `json:"table,omitempty"`
	Takeout      bool   `json:"takeout"`
	Waiter       string `json:"waiter"`
	Observations string `json:"observations,omitempty"`
	Status       string `json:"status"`
	Items        []Item `json:"items"`
}

// Ticket описывает заказ вместе со срочностью, вычисленной сервером.
type Ticket struct {
	Order          Order  `json:"order"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
	Tier           string `json:"tier"`
	Alert          bool   `json:"alert"`
}

// Board описывает ответ GET /api/kitchen/board.
type Board struct {
	Now     time.Time `json:"now"`
	Tickets []Ticket  `json:"tickets"`
}

// NewClient создаёт HTTP-клиент для сервера заказов по указанному адресу.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// FetchBoard запрашивает состояние кухонного экрана. При ответе 429 возвращает
// код и паузу из заголовка Retry-After без ошибки.
func (c *Client) FetchBoard(ctx context.Context) (*Board, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("display client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/kitchen/board", nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var board Board
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &board, resp.StatusCode, 0, nil
}
