// Package loki pushes session events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"device-session-gate/internal/telemetry"
)

// DefaultJob is the job label attached to every stream.
const DefaultJob = "device-session-gate"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters we do not want in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes log lines to a single Loki instance.
type Client struct {
	baseURL    string
	job        string
	httpClient *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100). A nil httpClient uses one with a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("loki: base URL is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, job: DefaultJob, httpClient: httpClient}, nil
}

// PushEventJSON parses a session event (Kafka message value) for its timestamp and low-cardinality labels
// and pushes the raw JSON as the log line. If parsing fails, the raw line is pushed with the current time.
// Account and device ids stay in the line; they are not labels.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var event telemetry.SessionEvent
	if err := json.Unmarshal(rawJSON, &event); err == nil {
		if event.EventType != "" {
			labels["event_type"] = event.EventType
		}
		if event.Source != "" {
			labels["source"] = event.Source
		}
		if !event.CreatedAt.IsZero() {
			ts = event.CreatedAt
		}
	}
	return c.Push(ctx, ts, string(rawJSON), labels)
}

// Push sends a single log line. Returns an error if the request fails or Loki returns non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
