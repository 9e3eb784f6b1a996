package messaging

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithHeader(t *testing.T) {
	tests := []struct {
		name     string
		opts     []PublishOption
		expected map[string]string
	}{
		{
			name:     "no options",
			opts:     nil,
			expected: nil,
		},
		{
			name:     "single header",
			opts:     []PublishOption{WithHeader(HeaderEvent, "ReceiveStats")},
			expected: map[string]string{HeaderEvent: "ReceiveStats"},
		},
		{
			name: "overwrite header",
			opts: []PublishOption{
				WithHeader("X-Key", "original"),
				WithHeader("X-Key", "updated"),
			},
			expected: map[string]string{"X-Key": "updated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyPublishOptions(tt.opts...)
			if len(got.Headers) != len(tt.expected) {
				t.Fatalf("expected %d headers, got %d", len(tt.expected), len(got.Headers))
			}
			for k, v := range tt.expected {
				if got.Headers[k] != v {
					t.Errorf("expected header %q=%q, got %q", k, v, got.Headers[k])
				}
			}
		})
	}
}

type stubClient struct {
	connected  bool
	requestErr error
}

func (s *stubClient) Publish(context.Context, string, []byte, ...PublishOption) error { return nil }
func (s *stubClient) Request(context.Context, string, []byte, time.Duration) (*Message, error) {
	return nil, s.requestErr
}
func (s *stubClient) Close() error { return nil }
func (s *stubClient) Subscribe(string, MessageHandler) (Subscription, error) {
	return nil, nil
}
func (s *stubClient) Respond(context.Context, *Message, []byte) error { return nil }
func (s *stubClient) Drain() error                                    { return nil }
func (s *stubClient) IsConnected() bool                               { return s.connected }

func TestCheckClientHealth(t *testing.T) {
	tests := []struct {
		name          string
		client        Client
		wantConnected bool
		wantError     bool
	}{
		{name: "nil client", client: nil, wantConnected: false, wantError: true},
		{name: "disconnected", client: &stubClient{connected: false}, wantConnected: false, wantError: true},
		{name: "connected without responders", client: &stubClient{connected: true, requestErr: errors.New("no responders")}, wantConnected: true},
		{name: "connected", client: &stubClient{connected: true}, wantConnected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckClientHealth(context.Background(), tt.client)
			if status.Connected != tt.wantConnected {
				t.Errorf("Connected = %v, want %v", status.Connected, tt.wantConnected)
			}
			if (status.Error != "") != tt.wantError {
				t.Errorf("Error = %q, wantError %v", status.Error, tt.wantError)
			}
		})
	}
}
