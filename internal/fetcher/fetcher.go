// Package fetcher downloads the remote dataset bundle into the local data directory.
package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const markerName = ".remote_sync.json"

// ErrNotConfigured indicates no remote URL was supplied.
var ErrNotConfigured = errors.New("remote dataset url not configured")

// Options parameterise the bundle syncer.
type Options struct {
	URL          string
	Token        string
	Dir          string
	CacheMinutes int
	Timeout      time.Duration
	// Required files force a download when any is missing.
	Required  []string
	UserAgent string
}

// SyncResult reports what a sync did.
type SyncResult struct {
	Downloaded bool
	Files      []string
	Reason     string
}

// Syncer keeps the data directory in step with a remote ZIP or CSV.
type Syncer struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

type marker struct {
	Timestamp float64 `json:"timestamp"`
	URL       string  `json:"url"`
}

// NewSyncer constructs a Syncer.
func NewSyncer(opts Options, logger zerolog.Logger) *Syncer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "bundle_fetcher").Logger(),
		now:    time.Now,
	}
}

// Sync downloads the bundle when forced, when the marker is stale or
// points at another url, or when a required file is missing.
func (s *Syncer) Sync(ctx context.Context, force bool) (SyncResult, error) {
	if strings.TrimSpace(s.opts.URL) == "" {
		return SyncResult{}, ErrNotConfigured
	}

	reason := s.refreshReason(force)
	if reason == "" {
		return SyncResult{Reason: "cache warm"}, nil
	}

	files, err := s.download(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if err := s.writeMarker(); err != nil {
		return SyncResult{}, err
	}

	s.logger.Info().Str("reason", reason).Int("files", len(files)).Msg("remote dataset synced")
	return SyncResult{Downloaded: true, Files: files, Reason: reason}, nil
}

func (s *Syncer) refreshReason(force bool) string {
	if force {
		return "forced"
	}
	for _, name := range s.opts.Required {
		if _, err := os.Stat(filepath.Join(s.opts.Dir, name)); err != nil {
			return "missing " + name
		}
	}
	if s.opts.CacheMinutes <= 0 {
		return "cache disabled"
	}

	raw, err := os.ReadFile(filepath.Join(s.opts.Dir, markerName))
	if err != nil {
		return "no marker"
	}
	var m marker
	if err := json.Unmarshal(raw, &m); err != nil {
		return "unreadable marker"
	}
	if m.URL != s.opts.URL {
		return "url changed"
	}
	synced := time.Unix(0, int64(m.Timestamp*float64(time.Second)))
	if s.now().Sub(synced) > time.Duration(s.opts.CacheMinutes)*time.Minute {
		return "cache expired"
	}
	return ""
}

func (s *Syncer) download(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(s.opts.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "autosniper/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download bundle: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if isZip(s.opts.URL, resp.Header.Get("Content-Type")) {
		return extractZip(payload, s.opts.Dir)
	}

	name := remoteName(s.opts.URL)
	if err := os.WriteFile(filepath.Join(s.opts.Dir, name), payload, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}

func (s *Syncer) writeMarker() error {
	now := s.now()
	body, err := json.Marshal(marker{
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		URL:       s.opts.URL,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.opts.Dir, markerName), body, 0o644); err != nil {
		return fmt.Errorf("write sync marker: %w", err)
	}
	return nil
}

func isZip(rawURL, contentType string) bool {
	u := strings.ToLower(rawURL)
	if parsed, err := url.Parse(rawURL); err == nil {
		u = strings.ToLower(parsed.Path)
	}
	return strings.HasSuffix(u, ".zip") || strings.Contains(strings.ToLower(contentType), "zip")
}

func remoteName(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "remote_dataset.csv"
}

// extractZip writes every file member under dir, dropping a leading CSV_data/ segment.
func extractZip(payload []byte, dir string) ([]string, error) {
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	var written []string
	for _, member := range archive.File {
		if member.FileInfo().IsDir() {
			continue
		}
		parts := strings.Split(path.Clean(strings.ReplaceAll(member.Name, "\\", "/")), "/")
		if len(parts) > 0 && strings.EqualFold(parts[0], "csv_data") {
			parts = parts[1:]
		}
		if len(parts) == 0 {
			continue
		}
		rel := filepath.Join(parts...)
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return nil, fmt.Errorf("bundle member %q escapes data dir", member.Name)
		}

		if err := writeMember(member, filepath.Join(dir, rel)); err != nil {
			return nil, err
		}
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}

func writeMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := member.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", member.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("extract %s: %w", member.Name, err)
	}
	return dst.Close()
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("bundle download error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("bundle download error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("bundle download error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("bundle download error (%d)", status)
}
