// Package coordinator управляет циклом обработки death-логов:
// опрос серверов по SFTP, поиск файлов, парсинг и трекинг смещений.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"EmeraldKillfeed/internal/config"
	"EmeraldKillfeed/internal/discovery"
	"EmeraldKillfeed/internal/identity"
	"EmeraldKillfeed/internal/models"
	"EmeraldKillfeed/internal/parser"
	remote "EmeraldKillfeed/internal/sftp"
	"EmeraldKillfeed/internal/storage"
)

// ErrHistoricalActive — по серверу идёт исторический разбор,
// killfeed-прогон пропускается до его завершения
var ErrHistoricalActive = errors.New("исторический разбор ещё не завершён")

// ErrAlreadyRunning — прогон по серверу уже идёт
var ErrAlreadyRunning = errors.New("прогон по серверу уже запущен")

// Dialer открывает SFTP-подключение; подменяется в тестах
type Dialer func(cfg remote.Config) (remote.Client, error)

// ServerSource отдаёт список игровых серверов для опроса
type ServerSource interface {
	ListServers(ctx context.Context) ([]models.GameServer, error)
}

// Coordinator ведёт смещения по файлам каждого сервера и гарантирует,
// что уже прочитанные строки не обрабатываются повторно.
// Смещения двигаются только вперёд: усечённый или пересозданный файл
// не откатывает их, такие строки догоняются историческим разбором.
type Coordinator struct {
	cfg     config.ProcessingConfig
	sftpCfg config.SFTPConfig
	lg      *zap.Logger
	engine  *discovery.Engine
	store   storage.OffsetStore
	servers ServerSource
	dial    Dialer
	out     chan<- models.KillEvent

	mu               sync.Mutex
	offsets          storage.Offsets
	activeHistorical map[string]struct{}
	inProgress       map[string]struct{}
	intervals        map[string]time.Duration
	emptyStreak      map[string]int
	nextRun          map[string]time.Time
	lastRun          map[string]models.ProcessingRun
}

func New(cfg *config.Config, servers ServerSource, store storage.OffsetStore, dial Dialer, out chan<- models.KillEvent, lg *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:              cfg.Processing,
		sftpCfg:          cfg.SFTP,
		lg:               lg,
		engine:           discovery.New(lg),
		store:            store,
		servers:          servers,
		dial:             dial,
		out:              out,
		offsets:          make(storage.Offsets),
		activeHistorical: make(map[string]struct{}),
		inProgress:       make(map[string]struct{}),
		intervals:        make(map[string]time.Duration),
		emptyStreak:      make(map[string]int),
		nextRun:          make(map[string]time.Time),
		lastRun:          make(map[string]models.ProcessingRun),
	}
}

// Run — основной цикл опроса. Загружает сохранённые смещения и дальше
// раз в минуту проверяет, какие серверы пора обработать.
// Ошибка по одному серверу логируется и не мешает остальным.
func (c *Coordinator) Run(ctx context.Context) {
	offs, err := c.store.Load(ctx)
	if err != nil {
		c.lg.Error("Не удалось загрузить смещения, начинаем с нуля", zap.Error(err))
		offs = make(storage.Offsets)
	}
	c.mu.Lock()
	c.offsets = offs
	c.mu.Unlock()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	c.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			c.lg.Info("Координатор остановлен")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll обрабатывает все серверы, у которых подошло время очередного прогона
func (c *Coordinator) poll(ctx context.Context) {
	servers, err := c.servers.ListServers(ctx)
	if err != nil {
		c.lg.Error("Не удалось получить список серверов", zap.Error(err))
		return
	}

	now := time.Now()
	for _, srv := range servers {
		c.mu.Lock()
		next, ok := c.nextRun[srv.ServerID]
		c.mu.Unlock()
		if ok && now.Before(next) {
			continue
		}

		c.processServer(ctx, srv, models.ModeKillfeed)

		if ctx.Err() != nil {
			return
		}
	}
}

// processServer открывает SFTP-подключение и запускает один прогон,
// перехватывая панику, чтобы один сервер не уронил весь цикл
func (c *Coordinator) processServer(ctx context.Context, srv models.GameServer, mode models.Mode) {
	defer func() {
		if r := recover(); r != nil {
			c.lg.Error("Паника при обработке сервера",
				zap.String("server_id", srv.ServerID), zap.Any("panic", r))
		}
	}()

	client, err := c.dial(remote.Config{
		Host:           srv.SFTPHost,
		Port:           srv.SFTPPort,
		Username:       srv.SFTPUsername,
		Password:       srv.SFTPPassword,
		ConnectTimeout: time.Duration(c.sftpCfg.ConnectTimeout) * time.Second,
		Logger:         c.lg,
	})
	if err != nil {
		c.lg.Warn("Не удалось подключиться по SFTP",
			zap.String("server_id", srv.ServerID),
			zap.String("host", srv.SFTPHost), zap.Error(err))
		c.scheduleNext(srv.ServerID, 0)
		return
	}
	defer func() {
		if closer, ok := client.(io.Closer); ok {
			closer.Close()
		}
	}()

	run, err := c.Process(ctx, client, srv.Identity(), mode)
	if err != nil {
		if !errors.Is(err, ErrHistoricalActive) && !errors.Is(err, ErrAlreadyRunning) {
			c.lg.Error("Ошибка прогона",
				zap.String("server_id", srv.ServerID), zap.Error(err))
		}
		c.scheduleNext(srv.ServerID, 0)
		return
	}
	c.scheduleNext(srv.ServerID, run.EventsProcessed)
}

// TriggerHistorical запускает исторический разбор сервера в фоне.
// Параллельные killfeed-прогоны по этому серверу будут пропущены
// до его завершения.
func (c *Coordinator) TriggerHistorical(ctx context.Context, srv models.GameServer) {
	go c.processServer(ctx, srv, models.ModeHistorical)
}

// Process выполняет один прогон по серверу. Исторический режим
// сбрасывает смещения и перечитывает все файлы с нуля, killfeed
// дочитывает только новые строки. Пока идёт исторический разбор,
// killfeed-прогоны по тому же серверу пропускаются.
func (c *Coordinator) Process(ctx context.Context, client remote.Client, ident models.ServerIdentity, mode models.Mode) (models.ProcessingRun, error) {
	run := models.ProcessingRun{
		RunID:     uuid.NewString(),
		ServerID:  ident.ServerID,
		Mode:      mode,
		StartedAt: time.Now(),
	}

	c.mu.Lock()
	if _, busy := c.inProgress[ident.ServerID]; busy {
		c.mu.Unlock()
		return run, ErrAlreadyRunning
	}
	if mode == models.ModeKillfeed {
		if _, hist := c.activeHistorical[ident.ServerID]; hist {
			c.mu.Unlock()
			return run, ErrHistoricalActive
		}
	}
	c.inProgress[ident.ServerID] = struct{}{}
	if mode == models.ModeHistorical {
		c.activeHistorical[ident.ServerID] = struct{}{}
		delete(c.offsets, ident.ServerID)
	}
	daysBack := c.cfg.DaysBack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inProgress, ident.ServerID)
		if mode == models.ModeHistorical {
			delete(c.activeHistorical, ident.ServerID)
		}
		run.Duration = time.Since(run.StartedAt)
		c.lastRun[ident.ServerID] = run
		c.mu.Unlock()
	}()

	if ident.OriginalID == "" {
		ident.OriginalID = identity.ResolveOriginalID(identity.Request{
			ServerID:   ident.ServerID,
			Hostname:   ident.Hostname,
			ServerName: ident.ServerName,
			GuildID:    ident.GuildID,
		}, c.lg)
	}

	files, stats := c.engine.DiscoverCSVFiles(ctx, client, ident, discovery.Options{
		StartDate:  run.StartedAt,
		DaysBack:   daysBack,
		Historical: mode == models.ModeHistorical,
	})
	// Счётчики поиска могут расходиться после дедупликации,
	// в отчёт идёт наибольший
	run.FilesFound = maxInt(stats.TotalFiles, stats.MapFiles+stats.RegularFiles)

	for _, f := range files {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		processed, err := c.processFile(ctx, client, ident.ServerID, f, mode)
		if err != nil {
			c.lg.Warn("Не удалось обработать файл, пропускаем",
				zap.String("path", f.FullPath), zap.Error(err))
			continue
		}
		run.FilesProcessed++
		run.EventsProcessed += processed
	}

	if err := c.saveOffsets(ctx); err != nil {
		c.lg.Error("Не удалось сохранить смещения", zap.Error(err))
	}

	c.lg.Info("Прогон завершён",
		zap.String("run_id", run.RunID),
		zap.String("server_id", ident.ServerID),
		zap.String("mode", string(mode)),
		zap.Int("files_found", run.FilesFound),
		zap.Int("files_processed", run.FilesProcessed),
		zap.Int("events", run.EventsProcessed))
	return run, nil
}

// processFile читает файл, парсит новые строки и двигает смещение.
// Смещение обновляется только если итоговое число строк строго больше
// сохранённого.
func (c *Coordinator) processFile(ctx context.Context, client remote.Client, serverID string, f models.DiscoveredFile, mode models.Mode) (int, error) {
	content, err := client.ReadFile(ctx, f.FullPath)
	if err != nil {
		return 0, fmt.Errorf("чтение %s: %w", f.FullPath, err)
	}

	c.mu.Lock()
	startLine := 0
	if mode == models.ModeKillfeed {
		if byFile, ok := c.offsets[serverID]; ok {
			startLine = byFile[f.Filename]
		}
	}
	c.mu.Unlock()

	events, totalLines := parser.Parse(content, f.FullPath, serverID, startLine, c.lg)

	sent := 0
	for _, ev := range events {
		select {
		case c.out <- ev:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}

	c.mu.Lock()
	byFile, ok := c.offsets[serverID]
	if !ok {
		byFile = make(map[string]int)
		c.offsets[serverID] = byFile
	}
	if totalLines > byFile[f.Filename] {
		byFile[f.Filename] = totalLines
	}
	c.mu.Unlock()

	return sent, nil
}

func (c *Coordinator) saveOffsets(ctx context.Context) error {
	c.mu.Lock()
	snapshot := c.offsets.Clone()
	c.mu.Unlock()
	return c.store.Save(ctx, snapshot)
}

// scheduleNext двигает время следующего прогона сервера.
// Пустые прогоны постепенно растягивают интервал с 5 до 30 минут
// шагом в 5, первое же событие возвращает его к начальному.
func (c *Coordinator) scheduleNext(serverID string, events int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	def := time.Duration(c.cfg.DefaultCheckInterval) * time.Minute
	max := time.Duration(c.cfg.MaxCheckInterval) * time.Minute
	step := 5 * time.Minute

	interval, ok := c.intervals[serverID]
	if !ok {
		interval = def
	}

	if events > 0 {
		interval = def
		c.emptyStreak[serverID] = 0
	} else {
		c.emptyStreak[serverID]++
		if c.emptyStreak[serverID] >= c.cfg.InactiveThreshold {
			interval += step
			if interval > max {
				interval = max
			}
		}
	}

	c.intervals[serverID] = interval
	c.nextRun[serverID] = time.Now().Add(interval)
}

// UpdateProcessing применяет новые параметры цикла обработки на лету;
// их подхватят следующие прогоны, текущие дорабатывают на старых
func (c *Coordinator) UpdateProcessing(p config.ProcessingConfig) {
	c.mu.Lock()
	c.cfg = p
	c.mu.Unlock()
}

// Interval возвращает текущий интервал опроса сервера
func (c *Coordinator) Interval(serverID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if iv, ok := c.intervals[serverID]; ok {
		return iv
	}
	return time.Duration(c.cfg.DefaultCheckInterval) * time.Minute
}

// LastRun возвращает итог последнего прогона по серверу
func (c *Coordinator) LastRun(serverID string) (models.ProcessingRun, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.lastRun[serverID]
	return run, ok
}

// Offset возвращает сохранённое смещение файла
func (c *Coordinator) Offset(serverID, filename string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byFile, ok := c.offsets[serverID]; ok {
		return byFile[filename]
	}
	return 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
