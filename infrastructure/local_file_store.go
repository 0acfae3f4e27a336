// infrastructure/local_file_store.go
package infrastructure

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vitovidale/autosplit-service/domain"
)

var _ domain.FileStore = (*LocalFileStore)(nil)

// LocalFileStore lays media out as {dir}/{id}.mp4 under the three working
// directories.
type LocalFileStore struct {
	ReelsDir     string
	GameplaysDir string
	OutputsDir   string
}

func NewLocalFileStore(reelsDir, gameplaysDir, outputsDir string) (*LocalFileStore, error) {
	for _, dir := range []string{reelsDir, gameplaysDir, outputsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &LocalFileStore{ReelsDir: reelsDir, GameplaysDir: gameplaysDir, OutputsDir: outputsDir}, nil
}

func (s *LocalFileStore) DownloadPath(jobID string) string {
	return filepath.Join(s.ReelsDir, jobID+".mp4")
}

func (s *LocalFileStore) GameplayPath(gameplayID string) string {
	return filepath.Join(s.GameplaysDir, gameplayID+".mp4")
}

func (s *LocalFileStore) OutputPath(jobID string) string {
	return filepath.Join(s.OutputsDir, jobID+".mp4")
}

// CopyToOutput copies src byte for byte to the job's output path.
func (s *LocalFileStore) CopyToOutput(src, jobID string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dst := s.OutputPath(jobID)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close %s: %w", dst, err)
	}
	return dst, nil
}

func (s *LocalFileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
