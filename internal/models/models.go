package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mode — режим обработки CSV-файлов.
// Исторический режим перечитывает все файлы с нуля и игнорирует смещения,
// killfeed-режим дочитывает только новые строки самого свежего файла.
type Mode string

const (
	ModeHistorical Mode = "historical"
	ModeKillfeed   Mode = "killfeed"
)

// EventType — тип события убийства
type EventType string

const (
	EventKill    EventType = "kill"
	EventSuicide EventType = "suicide"
)

// KillEvent — одно событие из death-лога.
// Порядок полей в CSV: timestamp;killer_name;killer_id;victim_name;victim_id;weapon;distance
type KillEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp  time.Time          `bson:"timestamp"`
	KillerName string             `bson:"killer_name"`
	KillerID   string             `bson:"killer_id"`
	VictimName string             `bson:"victim_name"`
	VictimID   string             `bson:"victim_id"`
	Weapon     string             `bson:"weapon"`
	Distance   float64            `bson:"distance"`
	ServerID   string             `bson:"server_id"`
	EventType  EventType          `bson:"event_type"`
}

// DiscoveredFile — найденный CSV-файл на удалённом сервере.
// Не сохраняется в базе: живёт только в пределах одного прогона,
// Filename используется как ключ для трекинга смещений.
type DiscoveredFile struct {
	FullPath     string
	BasePath     string
	MapDirectory string // пустая строка, если файл найден вне map-каталога
	Filename     string
	ParsedDate   *time.Time
}

// DiscoveryStats — статистика одного прогона поиска файлов.
// Счётчики файлов в map-каталогах и вне их ведутся раздельно:
// файлы вне основной структуры каталогов указывают на кривую настройку сервера.
type DiscoveryStats struct {
	TotalFiles     int
	MapFiles       int
	MapDirectories int
	RegularFiles   int
	FilteredFiles  int
	SearchedPaths  int
	HistoricalMode bool
}

// ServerIdentity — идентификация игрового сервера.
// OriginalID — числовой идентификатор из имён удалённых каталогов,
// отличается от внутреннего (обычно UUID) ServerID.
type ServerIdentity struct {
	ServerID   string
	OriginalID string
	Hostname   string
	ServerName string
	GuildID    string
}

// ProcessingRun — итог одного прогона координатора по серверу
type ProcessingRun struct {
	RunID           string
	ServerID        string
	Mode            Mode
	FilesFound      int
	FilesProcessed  int
	EventsProcessed int
	StartedAt       time.Time
	Duration        time.Duration
}

// Guild — документ Discord-гильдии в MongoDB
type Guild struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	GuildID        string             `bson:"guild_id"`
	Name           string             `bson:"name,omitempty"`
	PremiumTier    int                `bson:"premium_tier"`
	PremiumExpires *time.Time         `bson:"premium_expires,omitempty"`
	Servers        []GameServer       `bson:"servers,omitempty"`
	CreatedAt      time.Time          `bson:"created_at,omitempty"`
	UpdatedAt      time.Time          `bson:"updated_at,omitempty"`
}

// GameServer — документ игрового сервера с реквизитами SFTP
type GameServer struct {
	ServerID         string `bson:"server_id"`
	OriginalServerID string `bson:"original_server_id,omitempty"`
	ServerName       string `bson:"server_name,omitempty"`
	GuildID          string `bson:"guild_id"`
	SFTPHost         string `bson:"sftp_host"`
	SFTPPort         int    `bson:"sftp_port"`
	SFTPUsername     string `bson:"sftp_username"`
	SFTPPassword     string `bson:"sftp_password"`
}

// Identity собирает ServerIdentity из документа сервера
func (s GameServer) Identity() ServerIdentity {
	return ServerIdentity{
		ServerID:   s.ServerID,
		OriginalID: s.OriginalServerID,
		Hostname:   s.SFTPHost,
		ServerName: s.ServerName,
		GuildID:    s.GuildID,
	}
}

// PlayerStats — счётчики игрока, обновляются батчером по событиям
type PlayerStats struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	PlayerID string             `bson:"player_id"`
	Name     string             `bson:"name"`
	ServerID string             `bson:"server_id"`
	Kills    int64              `bson:"kills"`
	Deaths   int64              `bson:"deaths"`
	Suicides int64              `bson:"suicides"`
	Updated  time.Time          `bson:"updated_at"`
}
