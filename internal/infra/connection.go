package infra

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"

	"crypto-keystore/internal/domain"
)

// maxCheckoutRetries はMySQLのヘルスチェックで切断済み接続を捨てて取り直す最大回数。
const maxCheckoutRetries = 3

// Pinger は接続確認ができるストア。*sql.DB が満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RetryPolicy は再接続の試行回数と待機間隔を表す。
type RetryPolicy struct {
	// Attempts は最初の試行を含む最大試行回数。
	Attempts int
	// NewBackOff は Reconnect ごとに試行間の待機間隔を生成する。nil の場合は待機しない。
	NewBackOff func() backoff.BackOff
}

// DefaultRetryPolicy は待機なしで attempts 回まで試行するポリシーを返す。
func DefaultRetryPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		Attempts:   attempts,
		NewBackOff: zeroBackOff,
	}
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

// ConnectionManager はストアへの接続を確認し、失敗時はポリシーに従って再試行する。
type ConnectionManager struct {
	check  func(ctx context.Context) error
	policy RetryPolicy
	notify []func(err error, attempt int)
}

// NewConnectionManager は新しいConnectionManagerを生成する。
func NewConnectionManager(pinger Pinger, policy RetryPolicy) *ConnectionManager {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.NewBackOff == nil {
		policy.NewBackOff = zeroBackOff
	}
	return &ConnectionManager{
		check:  pinger.PingContext,
		policy: policy,
	}
}

// WithHealthCheck は接続確認の方法を差し替える。
func (m *ConnectionManager) WithHealthCheck(check func(ctx context.Context) error) *ConnectionManager {
	m.check = check
	return m
}

// OnRetry は試行が失敗して再試行する直前に呼ばれる関数を登録する。
func (m *ConnectionManager) OnRetry(fn func(err error, attempt int)) *ConnectionManager {
	m.notify = append(m.notify, fn)
	return m
}

// Reconnect は接続を確認し、失敗した場合は最大 Attempts 回まで試行する。
// すべて失敗した場合は最後のエラーを *domain.ConnectionError に包んで返す。
func (m *ConnectionManager) Reconnect(ctx context.Context) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, m.check(ctx)
	},
		backoff.WithBackOff(m.policy.NewBackOff()),
		backoff.WithMaxTries(uint(m.policy.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "keystore connection failed, retrying",
				"attempt", attempt,
				"max_attempts", m.policy.Attempts,
				"next", next,
				"error", err,
			)
			for _, fn := range m.notify {
				fn(err, attempt)
			}
		}),
	)
	if err != nil {
		slog.ErrorContext(ctx, "keystore connection failed",
			"operation", "reconnect",
			"attempts", attempt,
			"error", err,
		)
		return &domain.ConnectionError{Attempts: attempt, Err: err}
	}
	return nil
}

// IsDisconnect はエラーがサーバーとの切断を表すかどうかを判定する。
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 2006, // server has gone away
			2013, // lost connection during query
			2014, // commands out of sync
			2045, // can't open shared memory
			2055: // lost connection at handshake
			return true
		}
	}
	return false
}

// MySQLHealthCheck はプールから接続を取り出して SELECT 1 を実行するヘルスチェックを返す。
// 切断済みの接続だった場合はプールから破棄し、最大 maxCheckoutRetries 回まで取り直す。
func MySQLHealthCheck(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var lastErr error
		for i := 0; i < maxCheckoutRetries; i++ {
			conn, err := db.Conn(ctx)
			if err != nil {
				return err
			}
			_, err = conn.ExecContext(ctx, "SELECT 1")
			if err == nil {
				return conn.Close()
			}
			if !IsDisconnect(err) {
				conn.Close()
				return err
			}
			// driver.ErrBadConn を返すと database/sql はこの接続を再利用せずに閉じる
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			conn.Close()
			lastErr = err
		}
		return lastErr
	}
}
