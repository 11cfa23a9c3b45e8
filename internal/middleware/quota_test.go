package middleware

import "testing"

func TestQuotaLimitFor(t *testing.T) {
	q := NewQuota(nil, 10)

	if got := q.limitFor("free"); got != 10 {
		t.Errorf("free tier got limit %d, want 10", got)
	}
	if got := q.limitFor("pro"); got != 0 {
		t.Errorf("paid plan got limit %d, want uncapped", got)
	}

	disabled := NewQuota(nil, 0)
	if got := disabled.limitFor("free"); got != 0 {
		t.Errorf("disabled quota got limit %d, want 0", got)
	}
}
