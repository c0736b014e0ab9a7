// Package identity сопоставляет внутренний идентификатор игрового сервера
// (обычно UUID) с числовым "оригинальным" ID, который используется
// в именах удалённых каталогов вида /hostname_1234/actual1/deathlogs.
package identity

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// KnownServers — статическая таблица известных серверов (server_id -> числовой ID)
var KnownServers = map[string]string{
	"5251382d-8bce-4abd-8bcb-cdef73698a46": "7020", // Emerald EU
	"dc1f7c09-dabb-4607-a10d-353f66f1ea20": "7021", // Emerald US
	"681ef676-f9f6-2ab1-6462-2334000000":   "7022", // Emerald AU
	"681ef676-2c2d-2cd8-7588-2d2a000000":   "7023", // Emerald Asia
}

// Request — входные данные для разрешения ID
type Request struct {
	ServerID   string
	Hostname   string
	ServerName string
	GuildID    string
}

// strategy — один именованный способ разрешения.
// Стратегии пробуются по порядку, первая сработавшая побеждает.
type strategy struct {
	name string
	fn   func(Request) (string, bool)
}

var strategies = []strategy{
	{"known_servers", fromKnownServers},
	{"numeric_id", fromNumericID},
	{"server_name_token", fromServerNameToken},
	{"heuristic", fromHeuristic},
	{"trailing_digits", fromTrailingDigits},
}

// ResolveOriginalID возвращает числовой ID сервера.
// Никогда не возвращает ошибку: если ни одна стратегия не сработала,
// генерируется случайный пятизначный ID, а сбой логируется как ошибка —
// это признак проблемы с данными выше по течению, не нормальный путь.
func ResolveOriginalID(req Request, lg *zap.Logger) string {
	for _, s := range strategies {
		if id, ok := s.fn(req); ok {
			lg.Debug("Сервер идентифицирован",
				zap.String("server_id", req.ServerID),
				zap.String("original_id", id),
				zap.String("strategy", s.name))
			return id
		}
	}

	fallback := strconv.Itoa(10000 + rand.Intn(90000))
	lg.Error("Не удалось определить числовой ID сервера, используем случайный",
		zap.String("server_id", req.ServerID),
		zap.String("hostname", req.Hostname),
		zap.String("fallback_id", fallback))
	return fallback
}

// fromKnownServers — точное совпадение в статической таблице
func fromKnownServers(req Request) (string, bool) {
	id, ok := KnownServers[req.ServerID]
	return id, ok
}

// fromNumericID — server_id уже целиком числовой
func fromNumericID(req Request) (string, bool) {
	if req.ServerID != "" && isAllDigits(req.ServerID) {
		return req.ServerID, true
	}
	return "", false
}

// fromServerNameToken — первый числовой токен длиной от 4 знаков в имени сервера
func fromServerNameToken(req Request) (string, bool) {
	for _, tok := range strings.Fields(req.ServerName) {
		if len(tok) >= 4 && isAllDigits(tok) {
			return tok, true
		}
	}
	return "", false
}

var hostDigitsRegex = regexp.MustCompile(`\d+`)

// fromHeuristic комбинирует UUID и hostname:
// сначала первый hex-сегмент UUID приводится к числу в диапазоне [1000, 9999],
// затем берётся последняя группа цифр из hostname.
func fromHeuristic(req Request) (string, bool) {
	if req.ServerID != "" && strings.Contains(req.ServerID, "-") {
		hexPart := strings.SplitN(req.ServerID, "-", 2)[0]
		if v, err := strconv.ParseUint(hexPart, 16, 64); err == nil {
			derived := v % 10000
			if derived < 1000 {
				derived = 1000
			}
			return strconv.FormatUint(derived, 10), true
		}
	}
	if req.Hostname != "" {
		groups := hostDigitsRegex.FindAllString(req.Hostname, -1)
		if len(groups) > 0 {
			return groups[len(groups)-1], true
		}
	}
	return "", false
}

// fromTrailingDigits — хвостовая группа цифр в server_id, максимум 5 последних
func fromTrailingDigits(req Request) (string, bool) {
	s := req.ServerID
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	if start == end {
		return "", false
	}
	digits := s[start:end]
	if len(digits) > 5 {
		digits = digits[len(digits)-5:]
	}
	return digits, true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
