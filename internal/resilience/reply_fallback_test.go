package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/solace/pkg/provider/reply"
	replymock "github.com/MrWong99/solace/pkg/provider/reply/mock"
)

func TestReplyFallback(t *testing.T) {
	t.Parallel()

	errDown := errors.New("remote down")
	tests := []struct {
		name          string
		primary       *replymock.Provider
		secondary     *replymock.Provider
		want          string
		wantErr       error
		wantSecondary int
	}{
		{
			name:      "primary answers",
			primary:   &replymock.Provider{Text: "I hear you."},
			secondary: &replymock.Provider{Text: "local"},
			want:      "I hear you.",
		},
		{
			name:          "primary down",
			primary:       &replymock.Provider{Err: errDown},
			secondary:     &replymock.Provider{Text: "local"},
			want:          "local",
			wantSecondary: 1,
		},
		{
			name:      "no reply is not retried",
			primary:   &replymock.Provider{Err: reply.ErrNoReply},
			secondary: &replymock.Provider{Text: "local"},
			wantErr:   reply.ErrNoReply,
		},
		{
			name:          "all down",
			primary:       &replymock.Provider{Err: errDown},
			secondary:     &replymock.Provider{Err: errDown},
			wantErr:       ErrAllFailed,
			wantSecondary: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fb := NewReplyFallback(tt.primary, "remote", FallbackConfig{
				CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
			})
			fb.AddFallback("chat", tt.secondary)

			got, err := fb.Reply(context.Background(), reply.Request{Text: "hello"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if n := tt.secondary.CallCount(); n != tt.wantSecondary {
				t.Errorf("secondary called %d times, want %d", n, tt.wantSecondary)
			}
			if tt.primary.Request(0).Text != "hello" {
				t.Errorf("primary request text = %q", tt.primary.Request(0).Text)
			}
		})
	}
}

func TestReplyFallback_NoReplyKeepsBreakerClosed(t *testing.T) {
	t.Parallel()
	primary := &replymock.Provider{Err: reply.ErrNoReply}
	fb := NewReplyFallback(primary, "remote", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	for range 3 {
		_, _ = fb.Reply(context.Background(), reply.Request{Text: "hm"})
	}
	if got := primary.CallCount(); got != 3 {
		t.Errorf("primary called %d times, want 3", got)
	}
	if got := fb.States()[0].State; got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestReplyFallback_KeepsCustomPassthrough(t *testing.T) {
	t.Parallel()
	errBusy := errors.New("busy")
	primary := &replymock.Provider{Err: errBusy}
	secondary := &replymock.Provider{Text: "local"}
	fb := NewReplyFallback(primary, "remote", FallbackConfig{
		Passthrough: func(err error) bool { return errors.Is(err, errBusy) },
	})
	fb.AddFallback("chat", secondary)

	if _, err := fb.Reply(context.Background(), reply.Request{}); !errors.Is(err, errBusy) {
		t.Fatalf("err = %v, want errBusy", err)
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary should not be called for a passthrough error")
	}
}
