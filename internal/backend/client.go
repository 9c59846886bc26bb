// Package backend は印刷バックエンドへ印刷設定を送信するクライアントです。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/kagpatra/internal/pricing"
)

const defaultPageSize = "A4"

// PrintPreferences はバックエンドが受け付ける印刷設定の形式です。
type PrintPreferences struct {
	Color       string `json:"color"` // "Color" または "Grayscale"
	Copies      int    `json:"copies"`
	PageSize    string `json:"pageSize"`
	PageRanges  string `json:"pageRanges"`
	DoubleSided bool   `json:"doubleSided"`
	Direction   string `json:"direction"` // "portrait" または "landscape"
}

// NewPrintPreferences は見積もり済みの設定をバックエンド形式に変換します。
func NewPrintPreferences(p pricing.Preferences, est pricing.Estimate, direction string) PrintPreferences {
	color := "Grayscale"
	if p.ColorMode == pricing.Color {
		color = "Color"
	}
	if direction != "landscape" {
		direction = "portrait"
	}
	return PrintPreferences{
		Color:       color,
		Copies:      est.Copies,
		PageSize:    defaultPageSize,
		PageRanges:  est.PageRanges,
		DoubleSided: p.Duplex,
		Direction:   direction,
	}
}

type submitRequest struct {
	JobID       string           `json:"jobId"`
	Preferences PrintPreferences `json:"preferences"`
}

// StatusError はバックエンドが2xx以外を返したことを表します。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// Client は印刷バックエンドの HTTP クライアントです。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient は baseURL 宛てのクライアントを作成します。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitPreferences は POST /api/preferences に印刷設定を送信します。
func (c *Client) SubmitPreferences(ctx context.Context, jobID string, prefs PrintPreferences) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("jobID is required")
	}

	body, err := json.Marshal(submitRequest{JobID: jobID, Preferences: prefs})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/preferences", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit preferences: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
