package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "hub-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestHandleWebSocket_RejectsMissingToken(t *testing.T) {
	h := NewHub(nil, testSecret)

	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
}

func TestHandleWebSocket_RejectsForgedToken(t *testing.T) {
	h := NewHub(nil, testSecret)
	forged := signToken(t, "some-other-secret", jwt.MapClaims{
		"user_id": uuid.NewString(),
		"exp":     time.Now().Add(time.Minute).Unix(),
	})

	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+forged, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
}

func TestAuthenticate(t *testing.T) {
	h := NewHub(nil, testSecret)
	userID := uuid.New()

	tests := []struct {
		name   string
		token  string
		want   uuid.UUID
		wantOK bool
	}{
		{
			name: "valid token",
			token: signToken(t, testSecret, jwt.MapClaims{
				"user_id": userID.String(),
				"exp":     time.Now().Add(time.Minute).Unix(),
			}),
			want:   userID,
			wantOK: true,
		},
		{
			name: "expired token",
			token: signToken(t, testSecret, jwt.MapClaims{
				"user_id": userID.String(),
				"exp":     time.Now().Add(-time.Minute).Unix(),
			}),
			wantOK: false,
		},
		{
			name: "missing user id claim",
			token: signToken(t, testSecret, jwt.MapClaims{
				"exp": time.Now().Add(time.Minute).Unix(),
			}),
			wantOK: false,
		},
		{
			name:   "garbage token",
			token:  "not-a-jwt",
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws?token="+tc.token, nil)
			got, ok := h.authenticate(req)
			if ok != tc.wantOK {
				t.Fatalf("got ok=%v, want %v", ok, tc.wantOK)
			}
			if tc.wantOK && got != tc.want {
				t.Errorf("got user %s, want %s", got, tc.want)
			}
		})
	}
}
