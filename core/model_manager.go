package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ModelFile is one file of a model set. Path is relative to the models
// directory, e.g. "models-cunet/noise1_scale2.0x_model.bin".
type ModelFile struct {
	Path           string
	URL            string
	ExpectedSHA256 string // empty skips verification
	SizeBytes      int64  // 0 when unknown
}

// ModelSet groups the files that make up one model directory.
type ModelSet struct {
	Name  string
	Files []ModelFile
}

// sizeBytes returns the declared size of files, or ModelSetSizeBytes
// when any size is unknown.
func sizeBytes(files []ModelFile) int64 {
	var total int64
	for _, f := range files {
		if f.SizeBytes <= 0 {
			return ModelSetSizeBytes
		}
		total += f.SizeBytes
	}
	return total
}

// ModelManager makes model sets available in a models directory,
// downloading missing files with retries and resume.
type ModelManager struct {
	modelDir        string
	httpClient      *http.Client
	sets            map[string]ModelSet
	maxRetries      int
	baseRetryDelay  time.Duration
	diskSpaceBuffer int
	onProgress      func(file string, info ProgressInfo)
}

// ModelManagerOption is a functional option for configuring ModelManager.
type ModelManagerOption func(*ModelManager)

// WithMaxRetries sets the maximum number of download attempts per file.
func WithMaxRetries(n int) ModelManagerOption {
	return func(mm *ModelManager) {
		if n > 0 {
			mm.maxRetries = n
		}
	}
}

// WithBaseRetryDelay sets the delay before the second attempt; it doubles after that.
func WithBaseRetryDelay(d time.Duration) ModelManagerOption {
	return func(mm *ModelManager) {
		if d > 0 {
			mm.baseRetryDelay = d
		}
	}
}

// WithDiskSpaceBuffer sets the disk space buffer percentage.
func WithDiskSpaceBuffer(percent int) ModelManagerOption {
	return func(mm *ModelManager) {
		if percent >= 0 {
			mm.diskSpaceBuffer = percent
		}
	}
}

// WithModelSet registers a model set.
func WithModelSet(set ModelSet) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.sets[set.Name] = set
	}
}

// WithProgress installs a callback for per-file download progress.
func WithProgress(fn func(file string, info ProgressInfo)) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.onProgress = fn
	}
}

// NewModelManager creates a manager rooted at modelDir. A nil httpClient
// gets a client without timeout; ctx bounds each transfer.
//
// Defaults: 3 attempts with 2s, 4s backoff and a 10% disk space buffer.
func NewModelManager(modelDir string, httpClient *http.Client, opts ...ModelManagerOption) *ModelManager {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	mm := &ModelManager{
		modelDir:        modelDir,
		httpClient:      httpClient,
		sets:            make(map[string]ModelSet),
		maxRetries:      3,
		baseRetryDelay:  2 * time.Second,
		diskSpaceBuffer: DefaultBufferPercent,
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// ModelDir returns the root directory model files are stored under.
func (mm *ModelManager) ModelDir() string {
	return mm.modelDir
}

// ModelSetNames returns the registered set names in sorted order.
func (mm *ModelManager) ModelSetNames() []string {
	names := make([]string, 0, len(mm.sets))
	for name := range mm.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilePath returns where f lives on disk.
func (mm *ModelManager) FilePath(f ModelFile) string {
	return filepath.Join(mm.modelDir, filepath.FromSlash(f.Path))
}

// MissingFiles lists the files of set that are absent, empty, or fail
// their checksum.
func (mm *ModelManager) MissingFiles(setName string) ([]ModelFile, error) {
	set, ok := mm.sets[setName]
	if !ok {
		return nil, fmt.Errorf("unknown model set: %q (available: %v)", setName, mm.ModelSetNames())
	}

	var missing []ModelFile
	for _, f := range set.Files {
		present, err := mm.checkFile(mm.FilePath(f), f.ExpectedSHA256)
		if err != nil {
			return nil, err
		}
		if !present {
			missing = append(missing, f)
		}
	}
	return missing, nil
}

// EnsureModelSet downloads whatever MissingFiles reports and returns how
// many files were fetched.
func (mm *ModelManager) EnsureModelSet(ctx context.Context, setName string) (int, error) {
	missing, err := mm.MissingFiles(setName)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	need := sizeBytes(missing)
	if err := CheckDiskSpaceForModel(mm.modelDir, need, mm.diskSpaceBuffer); err != nil {
		return 0, &ModelDownloadError{
			ModelName: setName,
			Cause:     err,
			Message:   fmt.Sprintf("insufficient disk space: need %s with %d%% buffer", FormatBytes(need), mm.diskSpaceBuffer),
		}
	}

	for i, f := range missing {
		if err := mm.downloadFile(ctx, setName, f); err != nil {
			return i, err
		}
	}
	return len(missing), nil
}

// checkFile reports whether path holds a usable model file. A file with
// a wrong checksum counts as missing so it is fetched again.
func (mm *ModelManager) checkFile(path string, expectedChecksum string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat model file: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("model path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return false, nil
	}
	if expectedChecksum == "" {
		return true, nil
	}

	valid, err := VerifyChecksum(path, expectedChecksum)
	if err != nil {
		return false, fmt.Errorf("verify checksum: %w", err)
	}
	return valid, nil
}

func (mm *ModelManager) downloadFile(ctx context.Context, setName string, f ModelFile) error {
	destPath := mm.FilePath(f)

	var lastErr error
	for attempt := 1; attempt <= mm.maxRetries; attempt++ {
		if attempt > 1 {
			delay := mm.baseRetryDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		opts := DownloadOptions{
			URL:            f.URL,
			DestPath:       destPath,
			ExpectedSHA256: f.ExpectedSHA256,
			HTTPClient:     mm.httpClient,
			Resume:         true,
		}
		if mm.onProgress != nil {
			opts.OnProgress = func(info ProgressInfo) { mm.onProgress(f.Path, info) }
		}

		_, err := DownloadFile(ctx, opts)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
		return lastErr
	}
	return &ModelDownloadError{
		ModelName: setName,
		Cause:     lastErr,
		Message:   fmt.Sprintf("download of %s failed after %d attempts", f.Path, mm.maxRetries),
		URL:       f.URL,
		DestPath:  destPath,
		Checksum:  f.ExpectedSHA256,
	}
}

// isRetryableError reports whether another attempt could succeed.
// Network and HTTP failures are retried; cancellation and corrupt
// content are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrChecksumMismatch) {
		return false
	}
	var dsErr *DiskSpaceError
	return !errors.As(err, &dsErr)
}

// ModelDownloadError describes a model file that could not be fetched,
// with enough detail to download it by hand.
type ModelDownloadError struct {
	ModelName string
	Cause     error
	Message   string
	URL       string
	DestPath  string
	Checksum  string
}

func (e *ModelDownloadError) Error() string {
	if e.URL == "" || e.DestPath == "" {
		return fmt.Sprintf("model download failed: %s: %s", e.ModelName, e.Message)
	}

	checksum := e.Checksum
	if checksum == "" {
		checksum = "(not published)"
	}
	return fmt.Sprintf(`model download failed: %s

%s

Manual download instructions:
  1. Visit: %s
  2. Save to: %s
  3. Verify SHA256: %s`,
		e.ModelName, e.Message, e.URL, e.DestPath, checksum)
}

func (e *ModelDownloadError) Unwrap() error {
	return e.Cause
}
