package infra

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"

	"crypto-keystore/internal/domain"
)

// flakyPinger は指定回数だけ失敗してから成功するモック。
type flakyPinger struct {
	failures int
	calls    int
	err      error
}

func (p *flakyPinger) PingContext(ctx context.Context) error {
	p.calls++
	if p.failures < 0 || p.calls <= p.failures {
		return fmt.Errorf("ping #%d: %w", p.calls, p.err)
	}
	return nil
}

func TestConnectionManager_Reconnect(t *testing.T) {
	ctx := context.Background()
	refused := errors.New("connection refused")

	t.Run("first attempt succeeds", func(t *testing.T) {
		pinger := &flakyPinger{err: refused}
		m := NewConnectionManager(pinger, DefaultRetryPolicy(5))
		if err := m.Reconnect(ctx); err != nil {
			t.Fatalf("Reconnect failed: %v", err)
		}
		if pinger.calls != 1 {
			t.Errorf("expected 1 call, got %d", pinger.calls)
		}
	})

	t.Run("succeeds on last attempt", func(t *testing.T) {
		pinger := &flakyPinger{failures: 4, err: refused}
		var retries []int
		m := NewConnectionManager(pinger, DefaultRetryPolicy(5)).
			OnRetry(func(err error, attempt int) { retries = append(retries, attempt) })
		if err := m.Reconnect(ctx); err != nil {
			t.Fatalf("Reconnect failed: %v", err)
		}
		if pinger.calls != 5 {
			t.Errorf("expected 5 calls, got %d", pinger.calls)
		}
		if len(retries) != 4 {
			t.Errorf("expected 4 retry notifications, got %d", len(retries))
		}
	})

	t.Run("always fails", func(t *testing.T) {
		pinger := &flakyPinger{failures: -1, err: refused}
		m := NewConnectionManager(pinger, DefaultRetryPolicy(5))

		err := m.Reconnect(ctx)
		if pinger.calls != 5 {
			t.Errorf("expected exactly 5 calls, got %d", pinger.calls)
		}
		if !errors.Is(err, domain.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		var connErr *domain.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("expected *domain.ConnectionError, got %T", err)
		}
		if connErr.Attempts != 5 {
			t.Errorf("expected 5 attempts, got %d", connErr.Attempts)
		}
		// 最後の試行のエラーが保持される
		if !errors.Is(err, refused) {
			t.Errorf("expected underlying error to be wrapped, got %v", err)
		}
		if connErr.Err.Error() != "ping #5: connection refused" {
			t.Errorf("expected last attempt's error, got %v", connErr.Err)
		}
	})

	t.Run("attempts below one", func(t *testing.T) {
		pinger := &flakyPinger{failures: -1, err: refused}
		m := NewConnectionManager(pinger, DefaultRetryPolicy(0))
		if err := m.Reconnect(ctx); err == nil {
			t.Fatal("expected error, got nil")
		}
		if pinger.calls != 1 {
			t.Errorf("expected 1 call, got %d", pinger.calls)
		}
	})
}

func TestConnectionManager_WithHealthCheck(t *testing.T) {
	ctx := context.Background()
	calls := 0
	m := NewConnectionManager(&flakyPinger{}, DefaultRetryPolicy(3)).
		WithHealthCheck(func(ctx context.Context) error {
			calls++
			if calls < 2 {
				return driver.ErrBadConn
			}
			return nil
		})

	if err := m.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 health checks, got %d", calls)
	}
}

func TestIsDisconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"invalid conn", mysql.ErrInvalidConn, true},
		{"wrapped bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"gone away", &mysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"}, true},
		{"lost connection", &mysql.MySQLError{Number: 2013}, true},
		{"out of sync", &mysql.MySQLError{Number: 2014}, true},
		{"shared memory", &mysql.MySQLError{Number: 2045}, true},
		{"handshake", &mysql.MySQLError{Number: 2055}, true},
		{"duplicate entry", &mysql.MySQLError{Number: 1062}, false},
		{"other", errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDisconnect(tt.err); got != tt.want {
				t.Errorf("IsDisconnect(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
