package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch следит за изменениями конфиг-файла и зовёт onChange
// с новой конфигурацией после каждой успешной перечитки.
// Битый конфиг логируется и пропускается, сервис продолжает работать на старом.
func Watch(ctx context.Context, path string, lg *zap.Logger, onChange func(*Config)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		lg.Error("Не удалось создать watcher для конфига", zap.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		lg.Error("Не удалось добавить конфиг в watcher", zap.String("path", path), zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				lg.Info("Конфиг изменился, перечитываем", zap.String("path", path))
				newCfg, err := LoadConfig(path)
				if err != nil {
					lg.Error("Ошибка загрузки конфига", zap.Error(err))
					continue
				}
				onChange(newCfg)
			}
		case err := <-watcher.Errors:
			lg.Error("Ошибка watcher-а конфига", zap.Error(err))
		}
	}
}
