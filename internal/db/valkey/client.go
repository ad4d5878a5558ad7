// Package valkey talks to Valkey (or Redis Stack) through rueidis.
// It stores document chunks as hashes searchable by an FT vector index and
// serves as the key-value backend of the embedding cache.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

// Errors returned for server replies with a known meaning.
var (
	ErrUnknownIndex = errors.New("valkey: unknown index")
	ErrIndexExists  = errors.New("valkey: index already exists")
)

// CommandError carries the failing command name.
type CommandError struct {
	Cmd string
	Err error
}

func (e *CommandError) Error() string { return e.Cmd + ": " + e.Err.Error() }
func (e *CommandError) Unwrap() error { return e.Err }

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Client is a rueidis connection scoped to the commands docqa needs.
type Client struct {
	rc rueidis.Client
}

// Connect dials Valkey and waits up to readyTimeout for PING to succeed.
func Connect(ctx context.Context, cfg Config, readyTimeout time.Duration) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("addrs is required")
	}

	rc, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH and FT.INFO replies are parsed as flat arrays
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	c := &Client{rc: rc}
	if err := c.waitPing(ctx, readyTimeout, 100*time.Millisecond); err != nil {
		rc.Close()
		return nil, err
	}
	return c, nil
}

// NewWithClient wraps an existing rueidis client, typically a mock.
func NewWithClient(rc rueidis.Client) *Client {
	return &Client{rc: rc}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rc.Do(ctx, c.rc.B().Ping().Build()).Error(); err != nil {
		return &CommandError{Cmd: "PING", Err: err}
	}
	return nil
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.rc.Close()
}

func (c *Client) waitPing(ctx context.Context, timeout, every time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last error
	for {
		if last = c.Ping(ctx); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("valkey not ready after %s: %w", timeout, last)
		case <-time.After(every):
		}
	}
}

func (c *Client) ft(ctx context.Context, cmd string, args ...string) rueidis.RedisResult {
	return c.rc.Do(ctx, c.rc.B().Arbitrary(cmd).Args(args...).Build())
}

// serverSays reports whether err is a server reply containing any of the fragments.
func serverSays(err error, fragments ...string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(re.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

func isUnknownIndex(err error) bool {
	return serverSays(err, "unknown index name", "no such index", "not found")
}
