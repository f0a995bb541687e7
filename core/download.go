package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// PartialSuffix marks files that are still being written. Completed
// downloads and encoded images are renamed into place; leftovers are
// removed at shutdown.
const PartialSuffix = ".partial"

// progressInterval is the minimum number of bytes between OnProgress calls.
const progressInterval = 64 * 1024

// ErrChecksumMismatch is returned when a finished download does not hash
// to the expected value. The partial file is removed.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// DownloadOptions configures DownloadFile.
type DownloadOptions struct {
	URL      string
	DestPath string
	// ExpectedSHA256 is checked after the transfer when non-empty.
	ExpectedSHA256 string
	// HTTPClient defaults to a client with no timeout; ctx bounds the transfer.
	HTTPClient *http.Client
	OnProgress func(ProgressInfo)
	// Resume continues from DestPath+PartialSuffix when it exists.
	Resume bool
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	Path            string
	BytesDownloaded int64 // bytes transferred in this call
	TotalBytes      int64
	Resumed         bool
	ChecksumValid   bool
}

// DownloadFile fetches opts.URL into opts.DestPath. Data is written to
// DestPath+PartialSuffix and renamed only after the transfer (and the
// checksum, if given) succeeds, so DestPath never holds a truncated file.
func DownloadFile(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if opts.DestPath == "" {
		return nil, fmt.Errorf("DestPath is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if err := os.MkdirAll(filepath.Dir(opts.DestPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	partial := opts.DestPath + PartialSuffix
	var resumeFrom int64
	if opts.Resume {
		if info, err := os.Stat(partial); err == nil {
			resumeFrom = info.Size()
		}
	} else {
		_ = os.Remove(partial)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", BuildRangeHeader(resumeFrom))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	result := &DownloadResult{Path: opts.DestPath}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC

	switch resp.StatusCode {
	case http.StatusOK:
		resumeFrom = 0
		result.TotalBytes = resp.ContentLength
	case http.StatusPartialContent:
		result.Resumed = true
		flags = os.O_APPEND | os.O_WRONLY
		if _, _, total, err := ParseContentRange(resp.Header.Get("Content-Range")); err == nil && total > 0 {
			result.TotalBytes = total
		} else if resp.ContentLength > 0 {
			result.TotalBytes = resumeFrom + resp.ContentLength
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file is already complete or stale; start over.
		_ = os.Remove(partial)
		opts.Resume = false
		return DownloadFile(ctx, opts)
	default:
		return nil, fmt.Errorf("unexpected status code: %s", resp.Status)
	}

	file, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination file: %w", err)
	}

	tracker := NewProgressTracker(result.TotalBytes)
	tracker.SetDone(resumeFrom)
	reader := &progressReader{reader: resp.Body, tracker: tracker, onProgress: opts.OnProgress}

	n, copyErr := io.Copy(file, reader)
	result.BytesDownloaded = n
	syncErr := file.Sync()
	closeErr := file.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		return nil, fmt.Errorf("download interrupted: %w", err)
	}

	if opts.ExpectedSHA256 != "" {
		ok, err := VerifyChecksum(partial, opts.ExpectedSHA256)
		if err != nil {
			return nil, fmt.Errorf("checksum verification failed: %w", err)
		}
		if !ok {
			_ = os.Remove(partial)
			return nil, fmt.Errorf("%s: %w", opts.URL, ErrChecksumMismatch)
		}
		result.ChecksumValid = true
	}

	if err := os.Rename(partial, opts.DestPath); err != nil {
		return nil, fmt.Errorf("failed to move download into place: %w", err)
	}
	return result, nil
}

// progressReader reports progress at most every progressInterval bytes
// and once more at EOF.
type progressReader struct {
	reader     io.Reader
	tracker    *ProgressTracker
	onProgress func(ProgressInfo)
	lastReport int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.tracker.Update(int64(n))
	}
	if r.onProgress != nil {
		done := r.tracker.Done()
		if done-r.lastReport >= progressInterval || (err == io.EOF && done != r.lastReport) {
			r.onProgress(r.tracker.Progress())
			r.lastReport = done
		}
	}
	return n, err
}
