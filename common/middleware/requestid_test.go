package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name              string
		existingRequestID string
	}{
		{
			name:              "generates new request ID when not present",
			existingRequestID: "",
		},
		{
			name:              "propagates existing request ID",
			existingRequestID: "existing-req-123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/session", nil)
			if tt.existingRequestID != "" {
				req.Header.Set(RequestIDHeader, tt.existingRequestID)
			}
			rr := httptest.NewRecorder()

			RequestID(handler).ServeHTTP(rr, req)

			header := rr.Header().Get(RequestIDHeader)
			require.NotEmpty(t, header)
			assert.Equal(t, header, captured)

			if tt.existingRequestID != "" {
				assert.Equal(t, tt.existingRequestID, header)
				return
			}
			_, err := uuid.Parse(header)
			assert.NoError(t, err, "generated request ID should be a UUID")
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))
}
