package redis

import (
	"testing"
	"time"

	"github.com/veloxcart/catalog-cache/pkg/config"
)

func TestOptionsFromConfigRequiresEndpoint(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when neither url nor address set")
	}
}

func TestOptionsFromConfigAddress(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:     "localhost:6379",
		Password:    "secret",
		DB:          3,
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("expected address, got %q", opts.Addr)
	}
	if opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("expected db/pool carried over, got %d/%d", opts.DB, opts.PoolSize)
	}
}

func TestOptionsFromConfigURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/2"})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 {
		t.Fatalf("expected url parsed, got %q db %d", opts.Addr, opts.DB)
	}
}

func TestLockKeyNamespacing(t *testing.T) {
	c := &Client{}
	if got := c.LockKey("builder"); got != "catalog:lock:builder" {
		t.Fatalf("unexpected lock key %q", got)
	}
}
