package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/config"
)

const (
	// staleLockAge is how long a lock file may sit before it is assumed abandoned
	staleLockAge = time.Hour

	waitPollInterval = 2 * time.Second
	waitTimeout      = 10 * time.Minute
	progressEvery    = 256 << 20
)

// Metadata describes the local Open Food Facts snapshot
type Metadata struct {
	SourceURL    string    `json:"source_url"`
	SHA256       string    `json:"sha256"`
	DownloadedAt time.Time `json:"downloaded_at"`
	ETag         string    `json:"etag,omitempty"`
	Size         int64     `json:"size"`
}

// Manager keeps the product snapshot used by the parquet product source on disk
type Manager struct {
	sourceURL    string
	parquetPath  string
	metadataPath string
	lockPath     string

	disableRemoteCheck bool
	ignoreLock         bool
	refreshInterval    time.Duration

	client *http.Client
	log    *slog.Logger
}

// NewManager creates a snapshot manager from the parquet settings in cfg
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		sourceURL:          cfg.ParquetURL,
		parquetPath:        cfg.ParquetPath,
		metadataPath:       cfg.MetadataPath,
		lockPath:           cfg.LockFile,
		disableRemoteCheck: cfg.DisableRemoteCheck,
		ignoreLock:         cfg.IgnoreLock,
		refreshInterval:    cfg.RefreshInterval(),
		client:             &http.Client{Timeout: 30 * time.Minute},
		log:                logger,
	}
}

// EnsureDataset makes sure a snapshot exists locally, downloading it when it is
// missing or when the remote copy has changed
func (m *Manager) EnsureDataset(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Ensuring product snapshot", "parquet_path", m.parquetPath)

	if _, err := os.Stat(m.parquetPath); err == nil {
		if m.disableRemoteCheck {
			m.log.Info("Remote checks disabled, using local snapshot", "duration", time.Since(start))
			return nil
		}

		current, err := m.isUpToDate(ctx)
		if err != nil {
			// Keep the local copy when the remote cannot be checked
			m.log.Warn("Failed to verify snapshot freshness, keeping local copy", "error", err)
			return nil
		}
		if current {
			m.log.Info("Snapshot is up-to-date", "duration", time.Since(start))
			return nil
		}
	}

	if err := m.downloadWithLock(ctx); err != nil {
		return fmt.Errorf("failed to download snapshot: %w", err)
	}

	m.log.Info("Snapshot ensured", "duration", time.Since(start))
	return nil
}

// Refresh re-downloads the snapshot when it is older than the refresh interval
// and the remote copy changed. It reports whether a new file was written.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	if m.disableRemoteCheck {
		return false, nil
	}

	meta, err := m.loadMetadata()
	if err == nil && time.Since(meta.DownloadedAt) < m.refreshInterval {
		m.log.Debug("Snapshot within refresh interval", "age", time.Since(meta.DownloadedAt))
		return false, nil
	}

	current, err := m.isUpToDate(ctx)
	if err != nil {
		return false, err
	}
	if current {
		return false, nil
	}

	if err := m.downloadWithLock(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// LocalMetadata returns the metadata recorded for the last download
func (m *Manager) LocalMetadata() (*Metadata, error) {
	return m.loadMetadata()
}

func (m *Manager) isUpToDate(ctx context.Context) (bool, error) {
	local, err := m.loadMetadata()
	if err != nil {
		m.log.Debug("No local snapshot metadata", "error", err)
		return false, nil
	}
	if local.SourceURL != "" && local.SourceURL != m.sourceURL {
		m.log.Info("Snapshot source changed", "old", local.SourceURL, "new", m.sourceURL)
		return false, nil
	}

	remote, err := m.remoteMetadata(ctx)
	if err != nil {
		return false, err
	}

	if remote.ETag != "" && local.ETag != "" {
		return remote.ETag == local.ETag, nil
	}
	return remote.Size == local.Size, nil
}

func (m *Manager) remoteMetadata(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.sourceURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HEAD %s: status %d", m.sourceURL, resp.StatusCode)
	}

	return &Metadata{
		SourceURL: m.sourceURL,
		ETag:      resp.Header.Get("ETag"),
		Size:      resp.ContentLength,
	}, nil
}

func (m *Manager) downloadWithLock(ctx context.Context) error {
	lock, err := m.acquireLock()
	if err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("acquiring lock: %w", err)
		}
		if !m.ignoreLock {
			m.log.Info("Another instance is downloading, waiting", "lock_path", m.lockPath)
			return m.waitForDownload(ctx)
		}
		m.log.Warn("IGNORE_LOCK enabled, downloading without lock", "error", err)
	}
	if lock != nil {
		defer m.releaseLock(lock)
	}

	return m.download(ctx)
}

// download streams the snapshot into a temp file next to the target, hashing as
// it goes, then renames it into place
func (m *Manager) download(ctx context.Context) error {
	start := time.Now()
	dir := filepath.Dir(m.parquetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.sourceURL, nil)
	if err != nil {
		return err
	}

	m.log.Info("Downloading product snapshot", "url", m.sourceURL)
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", m.sourceURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.parquetPath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hash := sha256.New()
	progress := &progressWriter{log: m.log, total: resp.ContentLength}
	written, err := io.Copy(io.MultiWriter(tmp, hash, progress), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, m.parquetPath); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}

	meta := &Metadata{
		SourceURL:    m.sourceURL,
		SHA256:       hex.EncodeToString(hash.Sum(nil)),
		DownloadedAt: time.Now().UTC(),
		ETag:         resp.Header.Get("ETag"),
		Size:         written,
	}
	if err := m.saveMetadata(meta); err != nil {
		m.log.Warn("Failed to save snapshot metadata", "error", err)
	}

	m.log.Info("Snapshot downloaded",
		"bytes", written,
		"sha256", meta.SHA256[:16],
		"duration", time.Since(start))
	return nil
}

func (m *Manager) waitForDownload(ctx context.Context) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	timeout := time.After(waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.New("timeout waiting for download by other instance")
		case <-ticker.C:
			if _, err := os.Stat(m.lockPath); errors.Is(err, os.ErrNotExist) {
				if _, err := os.Stat(m.parquetPath); err == nil {
					m.log.Info("Snapshot available after other instance completed")
					return nil
				}
				return errors.New("other instance finished without producing a snapshot")
			}
		}
	}
}

func (m *Manager) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *Manager) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.metadataPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.metadataPath, data, 0o644)
}

// acquireLock creates the lock file exclusively, clearing one left behind by a
// crashed process or when IGNORE_LOCK is set
func (m *Manager) acquireLock() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(m.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(m.lockPath); err == nil {
		if m.ignoreLock || time.Since(info.ModTime()) > staleLockAge {
			m.log.Warn("Removing existing lock file", "lock_path", m.lockPath, "age", time.Since(info.ModTime()))
			_ = os.Remove(m.lockPath)
		}
	}

	return os.OpenFile(m.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

func (m *Manager) releaseLock(f *os.File) {
	_ = f.Close()
	_ = os.Remove(m.lockPath)
}

// progressWriter logs download progress every progressEvery bytes
type progressWriter struct {
	log     *slog.Logger
	total   int64
	written int64
	next    int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.written >= p.next {
		p.log.Info("Snapshot download progress", "bytes", p.written, "total", p.total)
		p.next = p.written + progressEvery
	}
	return len(b), nil
}
