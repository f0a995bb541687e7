package core

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultBufferPercent is the extra free space demanded on top of a
// model's size before a download starts.
const DefaultBufferPercent = 10

// ModelSetSizeBytes is the rough on-disk size of one waifu2x model
// directory (all noise levels, param and bin).
const ModelSetSizeBytes int64 = 64 * BytesPerMB

// DiskSpace describes the filesystem holding a path.
type DiskSpace struct {
	Path  string
	Total int64
	Free  int64
}

// Used returns Total minus Free.
func (d DiskSpace) Used() int64 {
	return d.Total - d.Free
}

// UsedPercent returns the used share of the filesystem in 0..100.
func (d DiskSpace) UsedPercent() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Used()) / float64(d.Total) * 100
}

// DiskSpaceError reports that a path does not have enough free space.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, FormatBytes(e.Required), FormatBytes(e.Available))
}

// GetDiskSpace returns usage for the filesystem containing path. Missing
// paths are resolved to their closest existing ancestor so the models
// directory can be checked before it is created.
func GetDiskSpace(path string) (*DiskSpace, error) {
	dir, err := existingDir(path)
	if err != nil {
		return nil, err
	}

	total, free, err := getDiskSpace(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}
	return &DiskSpace{Path: dir, Total: total, Free: free}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when less than requiredBytes
// is free at path.
func CheckDiskSpace(path string, requiredBytes int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}
	if info.Free < requiredBytes {
		return &DiskSpaceError{Path: path, Required: requiredBytes, Available: info.Free}
	}
	return nil
}

// CheckDiskSpaceForModel checks room for a download of modelSizeBytes
// plus bufferPercent headroom.
func CheckDiskSpaceForModel(path string, modelSizeBytes int64, bufferPercent int) error {
	if bufferPercent < 0 {
		bufferPercent = 0
	}
	return CheckDiskSpace(path, withHeadroom(modelSizeBytes, bufferPercent))
}

// withHeadroom adds percent of size to size, saturating at MaxInt64.
func withHeadroom(size int64, percent int) int64 {
	pct := int64(percent)
	extra := size/100*pct + size%100*pct/100
	if extra > math.MaxInt64-size {
		return math.MaxInt64
	}
	return size + extra
}

func existingDir(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	for {
		info, err := os.Stat(abs)
		if err == nil {
			if info.IsDir() {
				return abs, nil
			}
			return filepath.Dir(abs), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot access path %s: %w", abs, err)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("cannot access path %s: %w", path, err)
		}
		abs = parent
	}
}
