package storage

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// FileStore хранит смещения в локальном JSON-файле
type FileStore struct {
	Path string
	mu   sync.Mutex // защита при записи
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load(_ context.Context) (Offsets, error) {
	offsets := make(Offsets)
	if _, err := os.Stat(f.Path); os.IsNotExist(err) {
		return offsets, nil
	}
	bs, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bs, &offsets); err != nil {
		return nil, err
	}
	return offsets, nil
}

func (f *FileStore) Save(_ context.Context, data Offsets) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp := f.Path + ".tmp"
	bs, err := json.Marshal(data)
	if err != nil {
		return err
	}
	// Запись во временный файл
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	// Удаляем старый файл, чтобы Rename не ошибся (актуально для Windows)
	_ = os.Remove(f.Path)
	// Атомарно переименовываем временный файл в основной
	if err := os.Rename(tmp, f.Path); err != nil {
		return err
	}
	return nil
}
