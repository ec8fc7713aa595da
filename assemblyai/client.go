package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const BaseURL = "https://api.assemblyai.com/v2"

// Client calls the AssemblyAI REST API for one-shot transcription.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    BaseURL,
		HTTPClient: &http.Client{},
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL   string `json:"audio_url"`
	FormatText bool   `json:"format_text"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error,omitempty"`
}

// Upload stores raw audio bytes and returns the URL to transcribe from.
func (c *Client) Upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/upload", c.BaseURL),
		bytes.NewReader(audio),
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf(
			"unexpected status code: %d, response body: %s",
			resp.StatusCode,
			string(body),
		)
	}

	var upload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		return "", err
	}

	return upload.UploadURL, nil
}

// CreateTranscript submits a transcription job for the given audio URL.
func (c *Client) CreateTranscript(
	ctx context.Context,
	audioURL string,
) (*transcriptResponse, error) {
	payload, err := json.Marshal(transcriptRequest{
		AudioURL:   audioURL,
		FormatText: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/transcript", c.BaseURL),
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var transcript transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		return nil, err
	}

	return &transcript, nil
}

// GetTranscript fetches the current state of a transcription job.
func (c *Client) GetTranscript(
	ctx context.Context,
	id string,
) (*transcriptResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET",
		fmt.Sprintf("%s/transcript/%s", c.BaseURL, id),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var transcript transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		return nil, err
	}

	return &transcript, nil
}

// Transcribe uploads audio, submits a job, and polls until it completes.
func (c *Client) Transcribe(
	ctx context.Context,
	audio []byte,
	pollInterval time.Duration,
) (string, error) {
	audioURL, err := c.Upload(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}

	job, err := c.CreateTranscript(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			transcript, err := c.GetTranscript(ctx, job.ID)
			if err != nil {
				return "", err
			}

			switch transcript.Status {
			case "completed":
				return transcript.Text, nil
			case "error":
				return "", fmt.Errorf(
					"transcription failed: %s",
					transcript.Error,
				)
			}
		}
	}
}
