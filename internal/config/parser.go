package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readFile читает все байты из файла по пути
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// sanitize удаляет BOM и табуляции
func sanitize(data []byte) []byte {
	// Удаляем UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	// Заменяем табы на два пробела
	data = bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
	return data
}

// parseYAML парсит YAML-данные в структуру Config
func parseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("Mongo.URI must not be empty")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("Mongo.Database must not be empty")
	}
	if c.Discord.Token == "" && os.Getenv("DISCORD_TOKEN") == "" {
		return fmt.Errorf("Discord.Token must not be empty (or set DISCORD_TOKEN)")
	}
	if c.OffsetStorage != "file" && c.OffsetStorage != "redis" {
		return fmt.Errorf("OffsetStorage must be \"file\" or \"redis\", got %q", c.OffsetStorage)
	}
	if c.OffsetStorage == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("Redis.Host must not be empty when OffsetStorage is \"redis\"")
	}
	if c.Processing.MaxCheckInterval < c.Processing.DefaultCheckInterval {
		return fmt.Errorf("Processing.MaxCheckInterval must not be below DefaultCheckInterval")
	}
	return nil
}
