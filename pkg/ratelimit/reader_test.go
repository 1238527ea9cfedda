package ratelimit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name           string
		bytesPerSecond int64
		wantNil        bool
		wantBucket     int64
	}{
		{"zero disables limiting", 0, true, 0},
		{"negative disables limiting", -100, true, 0},
		{"small limit gets bucket floor", 1000, false, 65536},
		{"large limit gets one second bucket", 100 * 1024 * 1024, false, 100 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewLimiter(tt.bytesPerSecond)
			if tt.wantNil {
				if limiter != nil {
					t.Fatalf("NewLimiter(%d) should return nil", tt.bytesPerSecond)
				}
				return
			}
			if limiter == nil {
				t.Fatalf("NewLimiter(%d) returned nil", tt.bytesPerSecond)
			}
			if limiter.bucketSize != tt.wantBucket {
				t.Errorf("bucketSize = %d, want %d", limiter.bucketSize, tt.wantBucket)
			}
			if limiter.tokens != limiter.bucketSize {
				t.Errorf("bucket should start full: tokens = %d, want %d", limiter.tokens, limiter.bucketSize)
			}
		})
	}
}

func TestNewReaderNilLimiterPassesThrough(t *testing.T) {
	base := strings.NewReader("chunk data")
	reader := NewReader(context.Background(), base, nil)
	if reader != base {
		t.Error("a nil limiter should return the original reader unchanged")
	}
}

func TestReaderDeliversAllBytes(t *testing.T) {
	content := []byte("0123456789abcdef")
	reader := NewReader(context.Background(), bytes.NewReader(content), NewLimiter(1024*1024))

	var result []byte
	buf := make([]byte, 4)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			result = append(result, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}

	if !bytes.Equal(result, content) {
		t.Errorf("accumulated %q, want %q", result, content)
	}
}

func TestReaderHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewReader(ctx, bytes.NewReader(make([]byte, 1024)), NewLimiter(1024*1024))

	if _, err := reader.Read(make([]byte, 100)); err == nil {
		t.Error("Read() should fail on a cancelled context")
	}
}

func TestConsumeTokensClampsAtZero(t *testing.T) {
	limiter := NewLimiter(1024)
	limiter.tokens = 100

	limiter.consumeTokens(200)

	if limiter.tokens != 0 {
		t.Errorf("tokens = %d, want 0", limiter.tokens)
	}
}

func TestRefillTokens(t *testing.T) {
	limiter := NewLimiter(1000)
	limiter.tokens = 0
	limiter.lastUpdate = time.Now().Add(-100 * time.Millisecond)

	limiter.refillTokens()

	if limiter.tokens < 50 || limiter.tokens > 150 {
		t.Errorf("after 100ms at 1000 B/s, tokens = %d, expected ~100", limiter.tokens)
	}
}

func TestRefillCappedAtBucketSize(t *testing.T) {
	limiter := NewLimiter(1000)
	limiter.tokens = limiter.bucketSize - 10
	limiter.lastUpdate = time.Now().Add(-1 * time.Second)

	limiter.refillTokens()

	if limiter.tokens != limiter.bucketSize {
		t.Errorf("tokens = %d, want %d", limiter.tokens, limiter.bucketSize)
	}
}
