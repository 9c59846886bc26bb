// Package jobs は大きなアップロードのページ数判定を非同期で実行します。
package jobs

import (
	"time"

	"github.com/yourusername/kagpatra/internal/kiosk"
)

// Status は判定要求の実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
	StatusDiscarded Status = "discarded"
)

// Terminal は状態がこれ以上変化しない場合に true を返します。
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDiscarded:
		return true
	default:
		return false
	}
}

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorInfo は判定失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は判定要求の現在状態を表します。
type Record struct {
	RequestID string              `json:"requestId"`
	Status    Status              `json:"status"`
	Progress  ProgressInfo        `json:"progress"`
	Result    *kiosk.CountOutcome `json:"result,omitempty"`
	Error     *ErrorInfo          `json:"error,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
}
