// Package parser разбирает содержимое CSV death-логов в события убийств.
//
// Логи приходят с игровых серверов в непредсказуемых кодировках
// и с разными разделителями, поэтому и кодировка, и разделитель
// определяются по содержимому, а не задаются заранее.
package parser

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"EmeraldKillfeed/internal/models"
)

const lineTimeLayout = "2006.01.02-15.04.05"

// Ключевые слова оружия, означающие смерть от среды или самоубийство
var suicideWeapons = []string{"suicide", "falling", "relocation", "bleeding"}

// Parse разбирает контент файла начиная со строки startLine
// (0 для исторического режима, сохранённое смещение для killfeed).
//
// Возвращает события и полное число строк файла — не только новых:
// координатор сохраняет его как смещение "обработано строк всего".
// Паника внутри разбора перехватывается, после чего выполняется
// упрощённый запасной разбор; если и он падает — пустой результат и 0 строк.
func Parse(content []byte, filePath, serverID string, startLine int, lg *zap.Logger) (events []models.KillEvent, totalLines int) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Паника при разборе CSV, пробуем запасной разбор",
				zap.String("file", filePath), zap.Any("error", r))
			events, totalLines = parseFallback(content, filePath, serverID, startLine, lg)
		}
	}()

	if len(content) == 0 {
		return nil, 0
	}

	text, encoding := DecodeContent(content)
	lg.Debug("Файл декодирован", zap.String("file", filePath), zap.String("encoding", encoding))

	delim := DetectDelimiter(text)
	lines := splitLines(text)
	totalLines = len(lines)

	for i, line := range lines {
		if i < startLine {
			continue
		}
		// Пустые строки занимают позицию, но записью не являются
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.Split(line, delim)
		if len(parts) < 5 {
			lg.Debug("Строка короче 5 полей, пропущена",
				zap.String("file", filePath), zap.Int("line", i))
			continue
		}

		ev := models.KillEvent{
			KillerName: strings.TrimSpace(parts[1]),
			KillerID:   strings.TrimSpace(parts[2]),
			VictimName: strings.TrimSpace(parts[3]),
			VictimID:   strings.TrimSpace(parts[4]),
			ServerID:   serverID,
		}
		if ts, err := time.Parse(lineTimeLayout, strings.TrimSpace(parts[0])); err == nil {
			ev.Timestamp = ts
		} else {
			lg.Debug("Не удалось разобрать время строки",
				zap.String("file", filePath), zap.Int("line", i), zap.String("raw", parts[0]))
		}
		if len(parts) > 5 {
			ev.Weapon = strings.TrimSpace(parts[5])
		}
		if len(parts) > 6 {
			if d, err := strconv.ParseFloat(strings.TrimSpace(parts[6]), 64); err == nil {
				ev.Distance = d
			}
		}
		ev.EventType = Classify(ev)

		events = append(events, ev)
	}
	return events, totalLines
}

// Classify определяет тип события: самоубийство, когда убийца и жертва
// совпадают либо оружие указывает на урон от среды, иначе обычное убийство.
func Classify(ev models.KillEvent) models.EventType {
	if ev.KillerID != "" && ev.KillerID == ev.VictimID {
		return models.EventSuicide
	}
	if ev.KillerName != "" && ev.KillerName == ev.VictimName {
		return models.EventSuicide
	}
	weapon := strings.ToLower(ev.Weapon)
	for _, kw := range suicideWeapons {
		if strings.Contains(weapon, kw) {
			return models.EventSuicide
		}
	}
	return models.EventKill
}

// DecodeContent декодирует байты в строку.
// Сначала UTF-8; если заменённых символов больше 10% — Latin-1 (ISO-8859-1),
// затем CP1252. Однобайтовые декодеры не падают, поэтому хоть какой-то текст
// вернётся всегда; заключительный UTF-8 с заменами остаётся крайним случаем.
// Второе значение — имя использованной кодировки, для логов.
func DecodeContent(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), "utf-8"
	}

	utfText := strings.ToValidUTF8(string(b), "�")
	if replacementRatio(utfText) < 0.10 {
		return utfText, "utf-8"
	}

	if text, err := charmap.ISO8859_1.NewDecoder().String(string(b)); err == nil {
		return text, "latin-1"
	}
	if text, err := charmap.Windows1252.NewDecoder().String(string(b)); err == nil {
		return text, "cp1252"
	}
	return utfText, "utf-8-replace"
}

// replacementRatio — доля символов U+FFFD в тексте
func replacementRatio(s string) float64 {
	if s == "" {
		return 0
	}
	total := 0
	bad := 0
	for _, r := range s {
		total++
		if r == '�' {
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}

// DetectDelimiter выбирает разделитель по частоте в тексте:
// таб, если его не меньше 80% от максимума из остальных;
// запятая, если её в полтора раза больше точки с запятой;
// иначе точка с запятой — преобладающий формат этого семейства логов.
func DetectDelimiter(s string) string {
	tabs := strings.Count(s, "\t")
	commas := strings.Count(s, ",")
	semis := strings.Count(s, ";")

	maxOther := commas
	if semis > maxOther {
		maxOther = semis
	}
	if tabs > 0 && float64(tabs) >= 0.8*float64(maxOther) {
		return "\t"
	}
	if float64(commas) > 1.5*float64(semis) {
		return ","
	}
	return ";"
}

// parseFallback — упрощённый запасной разбор: разбить, проверить
// минимум полей, собрать событие. Без детекции кодировки и времени.
func parseFallback(content []byte, filePath, serverID string, startLine int, lg *zap.Logger) (events []models.KillEvent, totalLines int) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Запасной разбор тоже упал, файл пропущен",
				zap.String("file", filePath), zap.Any("error", r))
			events, totalLines = nil, 0
		}
	}()

	text := strings.ToValidUTF8(string(content), "")
	delim := DetectDelimiter(text)
	lines := splitLines(text)
	totalLines = len(lines)

	for i, line := range lines {
		if i < startLine || strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, delim)
		if len(parts) < 5 {
			continue
		}
		ev := models.KillEvent{
			KillerName: strings.TrimSpace(parts[1]),
			KillerID:   strings.TrimSpace(parts[2]),
			VictimName: strings.TrimSpace(parts[3]),
			VictimID:   strings.TrimSpace(parts[4]),
			ServerID:   serverID,
		}
		ev.EventType = Classify(ev)
		events = append(events, ev)
	}
	lg.Warn("Использован запасной разбор CSV",
		zap.String("file", filePath), zap.Int("events", len(events)))
	return events, totalLines
}

// splitLines делит текст на строки без хвостового пустого элемента
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
