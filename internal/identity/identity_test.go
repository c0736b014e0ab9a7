package identity

import (
	"testing"

	"go.uber.org/zap"
)

func TestResolveOriginalID_KnownServers(t *testing.T) {
	lg := zap.NewNop()

	got := ResolveOriginalID(Request{ServerID: "5251382d-8bce-4abd-8bcb-cdef73698a46"}, lg)
	if got != "7020" {
		t.Errorf("known server: expected 7020, got %s", got)
	}

	got = ResolveOriginalID(Request{ServerID: "dc1f7c09-dabb-4607-a10d-353f66f1ea20"}, lg)
	if got != "7021" {
		t.Errorf("known server: expected 7021, got %s", got)
	}
}

func TestResolveOriginalID_NumericID(t *testing.T) {
	got := ResolveOriginalID(Request{ServerID: "7042"}, zap.NewNop())
	if got != "7042" {
		t.Errorf("numeric server_id should pass through, got %s", got)
	}
}

func TestResolveOriginalID_ServerNameToken(t *testing.T) {
	got := ResolveOriginalID(Request{
		ServerID:   "not-a-known-uuid-at-all",
		ServerName: "EU Server 7042 Hardcore",
	}, zap.NewNop())
	if got != "7042" {
		t.Errorf("expected token 7042 from server name, got %s", got)
	}
}

func TestResolveOriginalID_ServerNameTokenTooShort(t *testing.T) {
	// Токены короче 4 знаков не считаются идентификаторами
	got := ResolveOriginalID(Request{
		ServerID:   "zzz",
		ServerName: "Server 42",
		Hostname:   "host123.example.com",
	}, zap.NewNop())
	if got != "123" {
		t.Errorf("expected hostname digits 123, got %s", got)
	}
}

func TestResolveOriginalID_HeuristicUUID(t *testing.T) {
	// 0xbb8 = 3000
	got := ResolveOriginalID(Request{ServerID: "00000bb8-0000-0000-0000-000000000000"}, zap.NewNop())
	if got != "3000" {
		t.Errorf("expected 3000 derived from uuid hex segment, got %s", got)
	}
}

func TestResolveOriginalID_HeuristicUUIDClamped(t *testing.T) {
	// 0x64 = 100 < 1000, поднимается до 1000
	got := ResolveOriginalID(Request{ServerID: "00000064-0000-0000-0000-000000000000"}, zap.NewNop())
	if got != "1000" {
		t.Errorf("expected derived id clamped to 1000, got %s", got)
	}
}

func TestResolveOriginalID_HostnameLastDigitGroup(t *testing.T) {
	got := ResolveOriginalID(Request{
		ServerID: "nohyphens",
		Hostname: "ny3.hosting77.example99.net",
	}, zap.NewNop())
	if got != "99" {
		t.Errorf("expected last digit group 99, got %s", got)
	}
}

func TestResolveOriginalID_TrailingDigits(t *testing.T) {
	got := ResolveOriginalID(Request{ServerID: "srv1234567"}, zap.NewNop())
	// Хвост длиннее 5 знаков усекается до последних 5
	if got != "34567" {
		t.Errorf("expected last 5 trailing digits 34567, got %s", got)
	}
}

func TestResolveOriginalID_FallbackRandom(t *testing.T) {
	got := ResolveOriginalID(Request{ServerID: "onlyletters"}, zap.NewNop())
	if len(got) != 5 {
		t.Errorf("fallback id should be five digits, got %q", got)
	}
	for _, r := range got {
		if r < '0' || r > '9' {
			t.Errorf("fallback id should be numeric, got %q", got)
		}
	}
}

func TestResolveOriginalID_NeverEmpty(t *testing.T) {
	cases := []Request{
		{},
		{ServerID: "abc"},
		{Hostname: "no-digits.example.com", ServerID: "xyz"},
	}
	for _, req := range cases {
		if got := ResolveOriginalID(req, zap.NewNop()); got == "" {
			t.Errorf("ResolveOriginalID(%+v) returned empty id", req)
		}
	}
}
