package keystore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// FileStore keeps blobs as files. Relative names resolve against BaseDir.
type FileStore struct {
	baseDir string
	log     logger.Logger
}

// NewFileStore creates a FileStore rooted at baseDir ("" means the working directory).
func NewFileStore(baseDir string, log logger.Logger) *FileStore {
	return &FileStore{baseDir: baseDir, log: log.WithComponent("FileKeyStore")}
}

func (s *FileStore) path(name string) string {
	if filepath.IsAbs(name) || s.baseDir == "" {
		return name
	}
	return filepath.Join(s.baseDir, name)
}

// Get reads the file behind name.
func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotFoundError(name).WithCause(err)
		}
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to read key file")
	}
	return data, nil
}

// Put writes data to the file behind name, creating parent directories.
// Files are written owner-only since they may hold private keys.
func (s *FileStore) Put(ctx context.Context, name string, data []byte) error {
	p := s.path(name)
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.WrapError(err, constants.ErrCodeInternal, "failed to create key directory")
		}
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to write key file")
	}
	s.log.Debug(ctx, "Key blob written", logger.String("path", p), logger.Int("bytes", len(data)))
	return nil
}
