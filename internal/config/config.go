package config

import "fmt"

// MongoConfig содержит настройки подключения к MongoDB
type MongoConfig struct {
	URI      string `yaml:"URI"`
	Database string `yaml:"Database"`
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Host     string `yaml:"Host"`
	Port     int    `yaml:"Port"`
	DB       int    `yaml:"DB"`
	Password string `yaml:"Password"`
}

// DiscordConfig — токен бота и канал для статусных сообщений.
// Токен может быть переопределён переменной окружения DISCORD_TOKEN.
type DiscordConfig struct {
	Token           string `yaml:"Token"`
	StatusChannelID string `yaml:"StatusChannelID"`
}

// SFTPConfig — таймауты удалённых операций, общие для всех серверов
type SFTPConfig struct {
	ConnectTimeout int `yaml:"ConnectTimeout"` // секунды
	ReadTimeout    int `yaml:"ReadTimeout"`    // секунды
}

// ProcessingConfig — параметры цикла обработки CSV.
// Интервалы проверок в минутах, DaysBack — окно исторического режима в днях.
type ProcessingConfig struct {
	DefaultCheckInterval int `yaml:"DefaultCheckInterval"`
	MaxCheckInterval     int `yaml:"MaxCheckInterval"`
	InactiveThreshold    int `yaml:"InactiveThreshold"`
	DaysBack             int `yaml:"DaysBack"`
	BatchSize            int `yaml:"BatchSize"`
	BatchInterval        int `yaml:"BatchInterval"` // секунды
}

// LoggingConfig содержит настройки логирования и интеграции с Sentry
type LoggingConfig struct {
	LogFile      string `yaml:"LogFile"`
	SentryDSN    string `yaml:"SentryDSN"`
	EnableSentry bool   `yaml:"EnableSentry"`
}

// Config описывает основные настройки сервиса.
// OffsetStorage: "file" или "redis" — где хранить смещения по файлам.
// Загружается из YAML, пример конфигурации см. README.md
type Config struct {
	Mongo      MongoConfig      `yaml:"Mongo"`
	Redis      RedisConfig      `yaml:"Redis"`
	Discord    DiscordConfig    `yaml:"Discord"`
	SFTP       SFTPConfig       `yaml:"SFTP"`
	Processing ProcessingConfig `yaml:"Processing"`
	Logging    LoggingConfig    `yaml:"Logging"`

	OffsetStorage string `yaml:"OffsetStorage"`
	OffsetFile    string `yaml:"OffsetFile"`
}

// LoadConfig читает и парсит конфиг из YAML-файла по указанному пути.
// Шаги:
// 1. Чтение сырого файла
// 2. Очистка данных: удаление BOM, замена табуляций
// 3. Парсинг YAML в структуру Config
// 4. Подстановка значений по умолчанию и валидация
func LoadConfig(path string) (*Config, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	sanitized := sanitize(raw)

	cfg, err := parseYAML(sanitized)
	if err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyDefaults подставляет значения по умолчанию для необязательных полей
func (c *Config) applyDefaults() {
	if c.OffsetStorage == "" {
		c.OffsetStorage = "file"
	}
	if c.OffsetFile == "" {
		c.OffsetFile = "offsets.json"
	}
	if c.SFTP.ConnectTimeout <= 0 {
		c.SFTP.ConnectTimeout = 10
	}
	if c.SFTP.ReadTimeout <= 0 {
		c.SFTP.ReadTimeout = 60
	}
	if c.Processing.DefaultCheckInterval <= 0 {
		c.Processing.DefaultCheckInterval = 5
	}
	if c.Processing.MaxCheckInterval <= 0 {
		c.Processing.MaxCheckInterval = 30
	}
	if c.Processing.InactiveThreshold <= 0 {
		c.Processing.InactiveThreshold = 3
	}
	if c.Processing.DaysBack <= 0 {
		c.Processing.DaysBack = 30
	}
	if c.Processing.BatchSize <= 0 {
		c.Processing.BatchSize = 100
	}
	if c.Processing.BatchInterval <= 0 {
		c.Processing.BatchInterval = 15
	}
}
