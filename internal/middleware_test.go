package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/chatrooms/internal/auth"
)

const (
	testSecret = "middleware-test-secret"
	testIssuer = "chatrooms"
)

func helper(t *testing.T, authHeader string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	return req, httptest.NewRecorder()
}

func makeToken(t *testing.T, userID int64, secret string, exp time.Duration) string {
	t.Helper()

	tok, err := auth.MakeJWT(userID, secret, testIssuer, exp)
	require.NoError(t, err)
	return tok
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     func(t *testing.T) string
		wantStatus int
		wantUser   int64
	}{
		{
			name:       "valid_token",
			header:     func(t *testing.T) string { return "Bearer " + makeToken(t, 42, testSecret, time.Minute) },
			wantStatus: http.StatusOK,
			wantUser:   42,
		},
		{
			name:       "no_header",
			header:     func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired_token",
			header:     func(t *testing.T) string { return "Bearer " + makeToken(t, 42, testSecret, -time.Minute) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong_secret",
			header:     func(t *testing.T) string { return "Bearer " + makeToken(t, 42, "other", time.Minute) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong_issuer",
			header: func(t *testing.T) string {
				tok, err := auth.MakeJWT(42, testSecret, "elsewhere", time.Minute)
				require.NoError(t, err)
				return "Bearer " + tok
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not_bearer",
			header:     func(t *testing.T) string { return "Basic dXNlcjpwdw==" },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				userID, err := auth.GetUserFromContext(r.Context())
				require.NoError(t, err)
				gotUser = userID
			})

			req, rec := helper(t, tt.header(t))
			Middleware(next, testSecret, testIssuer).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
