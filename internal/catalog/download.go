package catalog

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ratemap/internal/resilience"
)

// Downloader fetches boundary dataset archives over HTTP or FTP. Census
// servers throttle aggressively, so requests go through a shared limiter.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewDownloader creates a Downloader. A nil client falls back to a client
// with a 2-minute timeout.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Downloader{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Fetch downloads a boundary archive to destDir, extracts it, and returns
// the path to the contained .shp file. Archives already on disk are reused.
func (d *Downloader) Fetch(ctx context.Context, rawURL, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "catalog.download"),
		zap.String("url", rawURL),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "catalog: create dest dir")
	}

	parts := strings.Split(rawURL, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("archive already on disk, skipping download")
	} else {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "catalog: rate limit wait")
		}
		log.Info("downloading boundary archive")

		err := resilience.Do(ctx, d.retry, func(ctx context.Context) error {
			return d.fetchOnce(ctx, rawURL, zipPath)
		})
		if err != nil {
			return "", eris.Wrapf(err, "catalog: download %s", rawURL)
		}
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "catalog: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "catalog: extract archive")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "catalog: locate shapefile")
	}
	return shpPath, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "parse url")
	}

	switch u.Scheme {
	case "http", "https":
		return d.fetchHTTP(ctx, rawURL, dest)
	case "ftp":
		return fetchFTP(ctx, u, dest)
	default:
		return eris.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (d *Downloader) fetchHTTP(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return resilience.NewTransientError(
			eris.Errorf("download returned status %d", resp.StatusCode), resp.StatusCode)
	default:
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	return writeAtomic(dest, resp.Body)
}

// fetchFTP downloads from an FTP mirror. Registry boundary archives are still
// distributed this way.
func fetchFTP(ctx context.Context, u *url.URL, dest string) error {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "ftp dial"), 0)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	r, err := conn.Retr(u.Path)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "ftp retr %s", u.Path), 0)
	}
	defer r.Close() //nolint:errcheck

	return writeAtomic(dest, r)
}

func writeAtomic(dest string, r io.Reader) error {
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrap(err, "create file")
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrap(err, "write file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return eris.Wrap(err, "close file")
	}

	return os.Rename(tmp, dest)
}

// extractZIP extracts an archive to the destination directory, flattening
// any internal paths.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		destPath := filepath.Join(destDir, name)

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}

		if _, err := io.Copy(out, rc); err != nil {
			_ = out.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = out.Close()
		_ = rc.Close()
	}

	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
