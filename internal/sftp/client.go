// Package sftp — доступ к файлам игрового сервера по SFTP.
package sftp

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Client — интерфейс удалённой файловой системы, который потребляют
// поиск файлов и координатор. DirectoryExists никогда не возвращает ошибку:
// "не нашли" и "не смогли проверить" для поиска равнозначны.
type Client interface {
	DirectoryExists(ctx context.Context, path string) bool
	ListDirectory(ctx context.Context, path string) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Config — параметры подключения к одному серверу
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Manager — реализация Client поверх pkg/sftp
type Manager struct {
	conn   *ssh.Client
	client *sftp.Client
	lg     *zap.Logger
}

// Dial устанавливает SSH-соединение и открывает SFTP-сессию.
// Таймаут подключения ограничен, чтобы один недоступный сервер
// не стопорил весь цикл опроса.
func Dial(cfg Config) (*Manager, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, fmt.Errorf("sftp: host и username обязательны")
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{ssh.Password(cfg.Password)},
		// Игровые хостинги регулярно пересоздают серверы с новыми ключами
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp session %s: %w", addr, err)
	}

	return &Manager{conn: conn, client: client, lg: cfg.Logger}, nil
}

// remoteFS — срез sftp-клиента, который нужен проверке каталогов
type remoteFS interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
}

// DirectoryExists проверяет существование каталога
func (m *Manager) DirectoryExists(ctx context.Context, path string) bool {
	return directoryExists(ctx, m.client, path)
}

// directoryExists: путь существует, если листинг успешен либо stat
// возвращает каталог; любые другие исходы (включая пустой путь и "/")
// считаются отсутствием.
func directoryExists(ctx context.Context, fs remoteFS, path string) bool {
	if path == "" || path == "/" {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if _, err := fs.ReadDir(path); err == nil {
		return true
	}
	info, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ListDirectory возвращает имена записей каталога
func (m *Manager) ListDirectory(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := m.client.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listdir %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// ReadFile читает файл целиком
func (m *Manager) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := m.client.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Close закрывает SFTP-сессию и SSH-соединение
func (m *Manager) Close() error {
	if m.client != nil {
		m.client.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
