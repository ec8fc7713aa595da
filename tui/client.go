package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/scoutlabs/scout/chat"
)

// Client posts conversation turns to the chat endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

func (c *Client) Send(
	ctx context.Context,
	history []chat.Message,
) (string, *chat.Suggestion, error) {
	payload, err := json.Marshal(map[string]any{"messages": history})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		c.baseURL+"/api/chat",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil &&
			apiErr.Error != "" {
			return "", nil, fmt.Errorf("chat request failed: %s", apiErr.Error)
		}
		return "", nil, fmt.Errorf(
			"chat request failed with status %d",
			resp.StatusCode,
		)
	}

	var reply struct {
		Reply      string           `json:"reply"`
		Suggestion *chat.Suggestion `json:"suggestion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", nil, err
	}

	return reply.Reply, reply.Suggestion, nil
}
