package storage

import "context"

// Offsets — смещения по файлам: server_id → имя файла → число обработанных строк.
// Смещение в killfeed-режиме монотонно не убывает; исторический режим
// сбрасывает его перед полной переобработкой.
type Offsets map[string]map[string]int

// Clone — глубокая копия, чтобы сохранение не гонялось с обновлениями
func (o Offsets) Clone() Offsets {
	out := make(Offsets, len(o))
	for server, files := range o {
		m := make(map[string]int, len(files))
		for k, v := range files {
			m[k] = v
		}
		out[server] = m
	}
	return out
}

// OffsetStore — интерфейс для загрузки/сохранения смещений по файлам
type OffsetStore interface {
	Load(ctx context.Context) (Offsets, error)
	Save(ctx context.Context, data Offsets) error
}
