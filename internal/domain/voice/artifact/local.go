package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kani-tts-server/internal/platform/errors"
)

type localStore struct {
	root string
}

// NewLocal constructs a filesystem-backed artifact store rooted at path.
func NewLocal(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("local artifact store requires a path")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &localStore{root: path}, nil
}

// resolve maps a key onto the root, refusing traversal outside it.
func (s *localStore) resolve(key string) (string, error) {
	if key == "" {
		return "", errors.New(errors.KindInvalidInput, "artifact.key", "empty artifact key")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errors.Newf(errors.KindInvalidInput, "artifact.key", "invalid artifact key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *localStore) Put(_ context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.KindStorage, "artifact.put", "create artifact directory", err)
	}

	// Write-then-rename so a concurrent read never observes a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return errors.Wrap(errors.KindStorage, "artifact.put", "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.KindStorage, "artifact.put", "write artifact", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.KindStorage, "artifact.put", "close artifact", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.KindStorage, "artifact.put", "publish artifact", err)
	}
	return nil
}

func (s *localStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.KindNotFound, "artifact.get", "artifact not found: %s", key)
		}
		return nil, errors.Wrap(errors.KindStorage, "artifact.get", "read artifact", err)
	}
	return data, nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.KindNotFound, "artifact.delete", "artifact not found: %s", key)
		}
		return errors.Wrap(errors.KindStorage, "artifact.delete", "remove artifact", err)
	}
	return nil
}

func (s *localStore) Close(context.Context) error {
	return nil
}
