package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/0", false},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"single", []string{"tags"}, "pai:planner:tags"},
		{"nested", []string{"assign", "learner-1"}, "pai:planner:assign:learner-1"},
		{"none", nil, "pai:planner:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.parts...); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewToken_Unique(t *testing.T) {
	a, b := newToken(), newToken()
	if a == b {
		t.Errorf("newToken() returned the same token twice: %s", a)
	}
	if len(a) != 32 {
		t.Errorf("len(token) = %d, want 32", len(a))
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	ctx := t.Context()
	_, err := New(ctx, "redis://localhost:59999")
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}

func TestAcquire_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	opts, err := ParseURL("redis://localhost:59999")
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	opts.DialTimeout = 200 * time.Millisecond
	opts.MaxRetries = -1
	c := NewFromClient(redis.NewClient(opts))
	defer c.Close()

	if _, _, err := c.Acquire(t.Context(), Key("assign", "x"), time.Second); err == nil {
		t.Fatal("Acquire() should return error for unreachable host")
	}
}
