package parser

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
)

const sampleLog = "2025.05.09-11.58.37;Hunter;76561198011111111;Prey;76561198022222222;AK74;142.5\n" +
	"2025.05.09-11.59.02;Prey;76561198022222222;Prey;76561198022222222;suicide_by_relocation;0.0\n" +
	"2025.05.09-12.01.15;Ghost;76561198033333333;Hunter;76561198011111111;M4A1;87.0\n"

func TestParse_Basic(t *testing.T) {
	events, total := Parse([]byte(sampleLog), "test.csv", "7020", 0, zap.NewNop())

	if total != 3 {
		t.Fatalf("expected 3 total lines, got %d", total)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	first := events[0]
	if first.KillerName != "Hunter" || first.KillerID != "76561198011111111" {
		t.Errorf("unexpected killer: %+v", first)
	}
	if first.VictimName != "Prey" || first.VictimID != "76561198022222222" {
		t.Errorf("unexpected victim: %+v", first)
	}
	if first.Weapon != "AK74" {
		t.Errorf("expected weapon AK74, got %s", first.Weapon)
	}
	if first.Distance != 142.5 {
		t.Errorf("expected distance 142.5, got %f", first.Distance)
	}
	if first.ServerID != "7020" {
		t.Errorf("expected server_id 7020, got %s", first.ServerID)
	}
	if first.EventType != models.EventKill {
		t.Errorf("expected kill, got %s", first.EventType)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp should be parsed")
	}
	if first.Timestamp.Year() != 2025 || first.Timestamp.Hour() != 11 {
		t.Errorf("unexpected timestamp: %v", first.Timestamp)
	}

	if events[1].EventType != models.EventSuicide {
		t.Errorf("self-kill should be classified as suicide, got %s", events[1].EventType)
	}
}

func TestParse_StartLineSkipsProcessed(t *testing.T) {
	events, total := Parse([]byte(sampleLog), "test.csv", "7020", 2, zap.NewNop())
	if total != 3 {
		t.Fatalf("total lines must ignore start line, got %d", total)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 new event from line 2, got %d", len(events))
	}
	if events[0].KillerName != "Ghost" {
		t.Errorf("expected Ghost, got %s", events[0].KillerName)
	}
}

func TestParse_StartLineBeyondEOF(t *testing.T) {
	events, total := Parse([]byte(sampleLog), "test.csv", "7020", 100, zap.NewNop())
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
}

func TestParse_ShortLinesSkipped(t *testing.T) {
	content := "malformed;only;three\n" +
		"2025.05.09-11.58.37;A;1;B;2;Knife;1.0\n" +
		"\n" +
		"also,bad\n"
	events, total := Parse([]byte(content), "test.csv", "s", 0, zap.NewNop())
	if total != 4 {
		t.Errorf("blank and malformed lines still count, got total %d", total)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 valid event, got %d", len(events))
	}
}

func TestParse_Empty(t *testing.T) {
	events, total := Parse(nil, "test.csv", "s", 0, zap.NewNop())
	if len(events) != 0 || total != 0 {
		t.Errorf("empty content: expected 0/0, got %d/%d", len(events), total)
	}
}

func TestParse_Idempotent(t *testing.T) {
	// Повторный разбор с тем же смещением даёт тот же результат
	a, totalA := Parse([]byte(sampleLog), "f", "s", 1, zap.NewNop())
	b, totalB := Parse([]byte(sampleLog), "f", "s", 1, zap.NewNop())
	if totalA != totalB || len(a) != len(b) {
		t.Fatalf("parse is not deterministic: %d/%d vs %d/%d", len(a), totalA, len(b), totalB)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("event %d differs between runs", i)
		}
	}
}

func TestParse_CRLF(t *testing.T) {
	content := strings.ReplaceAll(sampleLog, "\n", "\r\n")
	events, total := Parse([]byte(content), "f", "s", 0, zap.NewNop())
	if total != 3 || len(events) != 3 {
		t.Errorf("CRLF input: expected 3/3, got %d/%d", len(events), total)
	}
}

func TestDetectDelimiter(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"semicolons dominate", "a;b;c;d;e\nf;g;h;i;j\n", ";"},
		{"commas over semicolons", "a,b,c,d,e,f,g,h,i,j;x;y;z\n", ","},
		{"commas not dominant enough", "a,b,c;d;e\n", ";"},
		{"tabs at threshold", "a\tb\tc\td\te\tf\tg\th\ti\tj,k,l,m,n,o,p,q,r,s,t\n", "\t"},
		{"no delimiters at all", "plainline\n", ";"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectDelimiter(tc.text); got != tc.want {
				t.Errorf("DetectDelimiter(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestDetectDelimiter_Deterministic(t *testing.T) {
	text := "a\tb,c;d\n"
	first := DetectDelimiter(text)
	for i := 0; i < 10; i++ {
		if got := DetectDelimiter(text); got != first {
			t.Fatalf("delimiter detection is not deterministic: %q vs %q", first, got)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		ev   models.KillEvent
		want models.EventType
	}{
		{"regular kill", models.KillEvent{KillerID: "1", VictimID: "2", Weapon: "AK74"}, models.EventKill},
		{"same id", models.KillEvent{KillerID: "1", VictimID: "1"}, models.EventSuicide},
		{"same name no ids", models.KillEvent{KillerName: "X", VictimName: "X"}, models.EventSuicide},
		{"falling", models.KillEvent{KillerID: "1", VictimID: "2", Weapon: "Falling"}, models.EventSuicide},
		{"suicide weapon", models.KillEvent{KillerID: "1", VictimID: "2", Weapon: "suicide_by_relocation"}, models.EventSuicide},
		{"bleeding", models.KillEvent{KillerID: "1", VictimID: "2", Weapon: "Bleeding out"}, models.EventSuicide},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.ev); got != tc.want {
				t.Errorf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDecodeContent_UTF8(t *testing.T) {
	text, enc := DecodeContent([]byte("обычный utf-8 текст"))
	if enc != "utf-8" {
		t.Errorf("expected utf-8, got %s", enc)
	}
	if text != "обычный utf-8 текст" {
		t.Errorf("text corrupted: %q", text)
	}
}

func TestDecodeContent_Latin1(t *testing.T) {
	// 0xE9 — é в Latin-1, невалидный UTF-8
	raw := []byte{0xE9, 0xE9, 0xE9, 0xE9}
	text, enc := DecodeContent(raw)
	if enc != "latin-1" {
		t.Errorf("expected latin-1 fallback, got %s", enc)
	}
	if text != "éééé" {
		t.Errorf("expected éééé, got %q", text)
	}
}

func TestDecodeContent_MostlyValidUTF8(t *testing.T) {
	// Один битый байт на длинный валидный текст — остаёмся в utf-8 с заменой
	raw := append([]byte(strings.Repeat("valid utf8 line here\n", 5)), 0xFF)
	_, enc := DecodeContent(raw)
	if enc != "utf-8" {
		t.Errorf("expected utf-8 with replacement under threshold, got %s", enc)
	}
}
