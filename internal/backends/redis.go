package backends

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	goredis "github.com/redis/go-redis/v9"
)

// Redis pings the server and hands the client back as the live handle.
type Redis struct{}

// NewRedis returns the redis capability.
func NewRedis() *Redis {
	return &Redis{}
}

// Probe implements probe.Prober.
func (r *Redis) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	opts, err := redisOptions(d)
	if err != nil {
		return probe.Conn{}, err
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return probe.Conn{}, fmt.Errorf("ping redis: %w", err)
	}
	return probe.Conn{Detail: "Connected successfully. Redis is responsive.", Handle: client}, nil
}

func redisOptions(d *registry.Descriptor) (*goredis.Options, error) {
	if d.URI != "" {
		opts, err := goredis.ParseURL(d.URI)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		applyRedisTimeouts(opts, d)
		return opts, nil
	}

	db := 0
	if d.Database != "" {
		parsed, err := strconv.Atoi(d.Database)
		if err != nil {
			return nil, fmt.Errorf("redis database %q is not a number", d.Database)
		}
		db = parsed
	}

	opts := &goredis.Options{
		Addr:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Username: d.Username,
		Password: d.Password,
		DB:       db,
	}
	applyRedisTimeouts(opts, d)
	return opts, nil
}

func applyRedisTimeouts(opts *goredis.Options, d *registry.Descriptor) {
	timeout := clientTimeout(d)
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.MaxRetries = -1
}
