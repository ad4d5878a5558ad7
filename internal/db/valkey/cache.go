package valkey

import (
	"context"
	"time"

	"github.com/redis/rueidis"
)

// Lookup returns the value under key. found is false for a missing key.
func (c *Client) Lookup(ctx context.Context, key string) (value []byte, found bool, err error) {
	data, err := c.rc.Do(ctx, c.rc.B().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, false, nil
	case err != nil:
		return nil, false, &CommandError{Cmd: "GET", Err: err}
	}
	return data, true, nil
}

// Put stores value under key. A non-positive ttl stores it without expiry.
func (c *Client) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = c.rc.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = c.rc.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := c.rc.Do(ctx, cmd).Error(); err != nil {
		return &CommandError{Cmd: "SET", Err: err}
	}
	return nil
}
