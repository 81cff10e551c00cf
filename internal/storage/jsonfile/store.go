// Package jsonfile хранит документы как файлы <dir>/<name>.json.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Store — файловое хранилище документов. Запись атомарна: временный файл и rename.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New создаёт хранилище и каталог для него.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("каталог хранилища %s: %w", dir, err)
	}
	log.WithField("dir", dir).Info("Файловое хранилище готово")
	return &Store{dir: dir}, nil
}

// Path возвращает путь к файлу документа.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load читает документ. Для отсутствующего файла возвращает nil без ошибки.
func (s *Store) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение %s: %w", name, err)
	}
	return data, nil
}

// Save перезаписывает документ целиком.
func (s *Store) Save(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("запись %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("запись %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("запись %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		return fmt.Errorf("запись %s: %w", name, err)
	}
	return nil
}
