package voice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Driver captures audio frames, dispatches them to the streaming relay
// endpoint, and concurrently consumes the SSE response to rebuild the live
// transcript. It is the Go rendition of the browser capture pipeline:
// fixed-size PCM16LE frames out, progressively-finalized turns in.
type Driver struct {
	endpoint string
	client   *http.Client
	logger   *log.Logger

	mu         sync.Mutex
	listening  bool
	paused     bool
	sessionID  string
	transcript string
	source     AudioSource

	onTranscript func(string)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriver(endpoint string, logger *log.Logger) *Driver {
	return &Driver{
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger,
	}
}

// OnTranscript registers a callback invoked with the full replacement text
// of each transcript event. Must be set before Start.
func (d *Driver) OnTranscript(fn func(string)) {
	d.onTranscript = fn
}

type streamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Error     string `json:"error"`
}

type actionRequest struct {
	Action     string `json:"action"`
	SessionID  string `json:"sessionId,omitempty"`
	AudioChunk string `json:"audioChunk,omitempty"`
}

// Start opens a streaming session and begins dispatching frames from the
// source. The transcript accumulator is reset so the new utterance starts
// from empty. On success the driver owns the source and closes it during
// Stop; on failure the caller keeps ownership.
func (d *Driver) Start(ctx context.Context, source AudioSource) error {
	d.mu.Lock()
	if d.listening {
		d.mu.Unlock()
		return fmt.Errorf("already listening")
	}
	d.transcript = ""
	d.sessionID = ""
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	resp, err := d.post(ctx, actionRequest{Action: "start"})
	if err != nil {
		cancel()
		return fmt.Errorf("start streaming session: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil &&
			apiErr.Error != "" {
			return fmt.Errorf("start streaming session: %s", apiErr.Error)
		}
		return fmt.Errorf(
			"start streaming session: status %d",
			resp.StatusCode,
		)
	}

	d.mu.Lock()
	d.listening = true
	d.paused = false
	d.cancel = cancel
	d.source = source
	d.mu.Unlock()

	d.wg.Add(2)
	go d.consumeEvents(resp)
	go d.capture(ctx, source)

	return nil
}

// consumeEvents reads the SSE stream and overwrites the accumulator on every
// transcript event. Turns replace prior text; they are never concatenated.
func (d *Driver) consumeEvents(resp *http.Response) {
	defer d.wg.Done()
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(line[len("data: "):]), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "ready":
			d.mu.Lock()
			d.sessionID = ev.SessionID
			d.mu.Unlock()

		case "transcript":
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				continue
			}
			d.mu.Lock()
			d.transcript = text
			cb := d.onTranscript
			d.mu.Unlock()
			if cb != nil {
				cb(text)
			}

		case "error":
			d.logger.Error("transcription", "error", ev.Error)

		case "close":
			return
		}
	}
}

// capture pulls frames from the source and posts them in capture order.
// Pause suppresses dispatch without tearing the session down.
func (d *Driver) capture(ctx context.Context, source AudioSource) {
	defer d.wg.Done()

	for {
		frame, err := source.ReadFrame()
		if err != nil {
			return
		}

		d.mu.Lock()
		listening, paused, sessionID := d.listening, d.paused, d.sessionID
		d.mu.Unlock()

		if !listening {
			return
		}
		if paused || sessionID == "" {
			continue
		}

		chunk := base64.StdEncoding.EncodeToString(ConvertToPCM16(frame))
		resp, err := d.post(ctx, actionRequest{
			Action:     "chunk",
			SessionID:  sessionID,
			AudioChunk: chunk,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("send chunk", "error", err)
			continue
		}
		resp.Body.Close()
	}
}

func (d *Driver) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

func (d *Driver) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
}

func (d *Driver) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

func (d *Driver) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

// SessionID returns the relay session id, or "" until the ready event has
// been received.
func (d *Driver) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Transcript returns the current accumulator content: the text of the most
// recent transcript event.
func (d *Driver) Transcript() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transcript
}

// Stop ends the session and returns any accumulated transcript so the
// caller can keep it as an editable draft instead of discarding it.
func (d *Driver) Stop() string {
	d.mu.Lock()
	if !d.listening {
		draft := d.transcript
		d.mu.Unlock()
		return draft
	}
	d.listening = false
	d.paused = false
	sessionID := d.sessionID
	d.sessionID = ""
	cancel := d.cancel
	source := d.source
	d.source = nil
	d.mu.Unlock()

	if sessionID != "" {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		resp, err := d.post(ctx, actionRequest{
			Action:    "stop",
			SessionID: sessionID,
		})
		if err != nil {
			d.logger.Error("stop session", "error", err)
		} else {
			resp.Body.Close()
		}
	}

	if cancel != nil {
		cancel()
	}
	// Closing the source unblocks a capture goroutine waiting on the next
	// frame; cancellation alone does not interrupt ReadFrame.
	if source != nil {
		if err := source.Close(); err != nil {
			d.logger.Debug("close source", "error", err)
		}
	}
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transcript
}

// Reset clears the accumulator, e.g. after the draft has been sent.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transcript = ""
}

func (d *Driver) post(
	ctx context.Context,
	action actionRequest,
) (*http.Response, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		d.endpoint,
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return d.client.Do(req)
}
