// infrastructure/http_downloader.go
package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

var _ domain.Downloader = (*HTTPDownloader)(nil)

type HTTPDownloader struct {
	Client *http.Client
	Logger *zap.Logger
}

func NewHTTPDownloader(timeout time.Duration, logger *zap.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		Client: &http.Client{Timeout: timeout},
		Logger: logger.Named("HTTPDownloader"),
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, url, dest string, started func() error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", domain.ErrDownloadFailed, url, resp.StatusCode)
	}
	if started != nil {
		if err := started(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("%w: stream interrupted after %d bytes: %w", domain.ErrDownloadFailed, n, err)
	}

	d.Logger.Debug("Download finished", zap.String("dest", dest), zap.Int64("bytes", n))
	return nil
}
