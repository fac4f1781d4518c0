package handler

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestHealthRoutes_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		pgErr      error
		redisErr   error
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all dependencies up",
			wantStatus: fiber.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "mail": "closed"},
		},
		{
			name:       "postgres down",
			pgErr:      errors.New("connection refused"),
			wantStatus: fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "down", "redis": "ok", "mail": "closed"},
		},
		{
			name:       "redis down",
			redisErr:   errors.New("i/o timeout"),
			wantStatus: fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "ok", "redis": "down", "mail": "closed"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sqlDB := sql.OpenDB(stubConnector{pingErr: tc.pgErr})
			t.Cleanup(func() { _ = sqlDB.Close() })
			rdb := newStubRedisClient(tc.redisErr)
			t.Cleanup(func() { _ = rdb.Close() })

			app := fiber.New()
			RegisterHealthRoutes(app, sqlDB, rdb, func() string { return "closed" })

			resp, _ := performRequest(t, app, http.MethodGet, "/livez", "")
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("livez status = %d, want 200", resp.StatusCode)
			}

			resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("readyz status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, string(body))
			}

			var payload struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatalf("json unmarshal error = %v", err)
			}
			for k, want := range tc.wantChecks {
				if payload.Checks[k] != want {
					t.Fatalf("checks[%s] = %q, want %q", k, payload.Checks[k], want)
				}
			}
		})
	}
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") && h.pingErr != nil {
			cmd.SetErr(h.pingErr)
			return h.pingErr
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
