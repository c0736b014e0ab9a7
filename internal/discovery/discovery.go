// Package discovery ищет CSV-файлы death-логов на удалённом сервере.
//
// Раскладка каталогов у хостингов нестабильная: основной вариант —
// /{hostname}_{original_id}/actual1/deathlogs/world_N/*.csv, но встречаются
// и устаревшие схемы без actual1 и с другим регистром. Поэтому поиск идёт
// по списку кандидатов, а map-каталоги ищутся и по известным именам,
// и по шаблону в листинге.
package discovery

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
	remote "EmeraldKillfeed/internal/sftp"
)

const fileDateLayout = "2006.01.02-15.04.05"

var (
	// Основной формат имени: 2025.05.09-11.58.37.csv
	csvNameRegex = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}\.csv$`)
	// Ослабленный запасной вариант, когда основной не дал ни одного файла
	csvRelaxedRegex = regexp.MustCompile(`(?i)\.csv$`)
	// Ловим непредвиденные варианты именования map-каталогов в листинге
	mapDirRegex = regexp.MustCompile(`(?i)^(world|map|level)[-_]?\d*$`)
)

// Известные имена map-каталогов, проверяются напрямую
var mapSubdirs = []string{
	"world_0", "world0", "world_1", "world1", "world_2", "world2", "world",
	"world_3", "world3",
	"map_0", "map0", "map_1", "map1", "map_2", "map2", "map",
}

// Options — параметры одного прогона поиска
type Options struct {
	StartDate  time.Time
	DaysBack   int
	Historical bool
}

// Engine — движок поиска CSV-файлов
type Engine struct {
	lg *zap.Logger
}

func New(lg *zap.Logger) *Engine {
	return &Engine{lg: lg}
}

type mapDir struct {
	base string
	name string
	path string
}

// DiscoverCSVFiles перечисляет CSV-файлы по всем живым базовым путям
// и их map-каталогам. Ошибка на отдельном каталоге логируется, каталог
// считается пустым, поиск продолжается — один битый путь не должен
// срывать весь прогон.
//
// В историческом режиме возвращаются все найденные файлы без фильтра
// по дате: решение "новое или нет" принимает трекер смещений.
// В killfeed-режиме остаётся только самый свежий файл на пару
// (map-каталог, день).
func (e *Engine) DiscoverCSVFiles(ctx context.Context, client remote.Client, ident models.ServerIdentity, opts Options) ([]models.DiscoveredFile, models.DiscoveryStats) {
	stats := models.DiscoveryStats{HistoricalMode: opts.Historical}

	candidates := e.basePaths(ident, opts.Historical)
	stats.SearchedPaths = len(candidates)

	var alive []string
	for _, bp := range candidates {
		if client.DirectoryExists(ctx, bp) {
			alive = append(alive, bp)
		}
	}
	if len(alive) == 0 {
		e.lg.Warn("Ни один базовый путь не существует",
			zap.String("server_id", ident.ServerID),
			zap.Int("candidates", len(candidates)))
		return nil, stats
	}

	mapDirs := e.findMapDirectories(ctx, client, alive)
	stats.MapDirectories = len(mapDirs)

	var files []models.DiscoveredFile
	seen := make(map[string]struct{})

	// Сначала map-каталоги: это основное место файлов
	for _, md := range mapDirs {
		for _, name := range e.listCSV(ctx, client, md.path) {
			full := path.Join(md.path, name)
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			files = append(files, models.DiscoveredFile{
				FullPath:     full,
				BasePath:     md.base,
				MapDirectory: md.name,
				Filename:     name,
				ParsedDate:   parseFileDate(name),
			})
			stats.MapFiles++
		}
	}

	// Затем файлы прямо в базовых путях — признак нестандартной раскладки
	for _, bp := range alive {
		for _, name := range e.listCSV(ctx, client, bp) {
			full := path.Join(bp, name)
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			files = append(files, models.DiscoveredFile{
				FullPath:   full,
				BasePath:   bp,
				Filename:   name,
				ParsedDate: parseFileDate(name),
			})
			stats.RegularFiles++
		}
	}

	if !opts.Historical {
		files, stats.FilteredFiles = newestPerMapDay(files, opts)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].FullPath < files[j].FullPath })
	stats.TotalFiles = len(files)

	e.lg.Info("Поиск CSV завершён",
		zap.String("server_id", ident.ServerID),
		zap.Int("total", stats.TotalFiles),
		zap.Int("map_files", stats.MapFiles),
		zap.Int("map_directories", stats.MapDirectories),
		zap.Int("regular_files", stats.RegularFiles),
		zap.Bool("historical", opts.Historical))
	return files, stats
}

// basePaths строит список каталогов-кандидатов для сервера.
// Основная схема плюс устаревшие варианты, исторический режим
// добавляет ещё более широкие корни. Дубликаты убираются с сохранением порядка.
func (e *Engine) basePaths(ident models.ServerIdentity, historical bool) []string {
	host := ident.Hostname
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		host = "server"
	}
	serverDir := host + "_" + ident.OriginalID

	candidates := []string{
		"/" + serverDir + "/actual1/deathlogs",
		"/" + serverDir + "/deathlogs",
		"/" + serverDir + "/Logs/deathlogs",
		"/" + serverDir + "/logs/deathlogs",
		"/" + serverDir + "/game/deathlogs",
		"/" + serverDir + "/actual1/logs",
	}
	if historical {
		candidates = append(candidates,
			"/"+serverDir,
			"/"+serverDir+"/actual1",
			"/"+serverDir+"/logs",
		)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// findMapDirectories ищет map-каталоги под каждым живым базовым путём:
// сначала известные имена, затем листинг с проверкой по шаблону —
// он ловит непредвиденные варианты вроде World-4.
func (e *Engine) findMapDirectories(ctx context.Context, client remote.Client, basePaths []string) []mapDir {
	var dirs []mapDir
	seen := make(map[string]struct{})

	add := func(base, name string) {
		p := path.Join(base, name)
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		dirs = append(dirs, mapDir{base: base, name: name, path: p})
		e.lg.Debug("Найден map-каталог", zap.String("path", p))
	}

	for _, base := range basePaths {
		for _, name := range mapSubdirs {
			if client.DirectoryExists(ctx, path.Join(base, name)) {
				add(base, name)
			}
		}

		entries, err := client.ListDirectory(ctx, base)
		if err != nil {
			e.lg.Warn("Не удалось пролистать базовый путь",
				zap.String("path", base), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if !mapDirRegex.MatchString(entry) {
				continue
			}
			if _, dup := seen[path.Join(base, entry)]; dup {
				continue
			}
			if client.DirectoryExists(ctx, path.Join(base, entry)) {
				add(base, entry)
			}
		}
	}
	return dirs
}

// listCSV возвращает имена CSV-файлов каталога по основному шаблону,
// при нуле совпадений — по ослабленному. Ошибка листинга — пустой результат.
func (e *Engine) listCSV(ctx context.Context, client remote.Client, dir string) []string {
	entries, err := client.ListDirectory(ctx, dir)
	if err != nil {
		e.lg.Warn("Не удалось пролистать каталог, пропускаем",
			zap.String("path", dir), zap.Error(err))
		return nil
	}

	var out []string
	for _, name := range entries {
		if csvNameRegex.MatchString(name) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		for _, name := range entries {
			if csvRelaxedRegex.MatchString(name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// newestPerMapDay оставляет самый свежий файл на пару (map-каталог, день).
// Лексикографический порядок имён совпадает с хронологическим.
// Возвращает также число отброшенных файлов.
func newestPerMapDay(files []models.DiscoveredFile, opts Options) ([]models.DiscoveredFile, int) {
	var cutoff time.Time
	if opts.DaysBack > 0 && !opts.StartDate.IsZero() {
		cutoff = opts.StartDate.AddDate(0, 0, -opts.DaysBack)
	}

	filtered := 0
	newest := make(map[string]models.DiscoveredFile)
	var order []string

	for _, f := range files {
		if !cutoff.IsZero() && f.ParsedDate != nil && f.ParsedDate.Before(cutoff) {
			filtered++
			continue
		}
		day := ""
		if f.ParsedDate != nil {
			day = f.ParsedDate.Format("2006.01.02")
		}
		key := f.MapDirectory + "|" + day
		prev, ok := newest[key]
		if !ok {
			newest[key] = f
			order = append(order, key)
			continue
		}
		filtered++
		if f.Filename > prev.Filename {
			newest[key] = f
		}
	}

	out := make([]models.DiscoveredFile, 0, len(order))
	for _, key := range order {
		out = append(out, newest[key])
	}
	return out, filtered
}

// parseFileDate извлекает дату из имени файла вида 2025.05.09-11.58.37.csv
func parseFileDate(name string) *time.Time {
	base := strings.TrimSuffix(name, path.Ext(name))
	t, err := time.Parse(fileDateLayout, base)
	if err != nil {
		return nil
	}
	return &t
}
