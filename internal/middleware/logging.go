// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// 監査ログの結果。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	EventID   string `json:"event_id"`
	Operation string `json:"operation"`
	Account   string `json:"account,omitempty"`
	KeyID     int64  `json:"key_id,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// NewAuditLog は新しいイベントIDを採番した監査ログを生成する。
func NewAuditLog(operation, account string, keyID int64, result string) AuditLog {
	return AuditLog{
		EventID:   uuid.NewString(),
		Operation: operation,
		Account:   account,
		KeyID:     keyID,
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteAuditLog は監査ログを出力する。鍵素材は出力しない。
func WriteAuditLog(ctx context.Context, operation string, account string, keyID int64, result string) {
	entry := NewAuditLog(operation, account, keyID, result)
	slog.InfoContext(ctx, "key operation completed",
		"event_id", entry.EventID,
		"operation", entry.Operation,
		"account", entry.Account,
		"key_id", entry.KeyID,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	)
}
