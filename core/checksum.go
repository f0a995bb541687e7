package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ComputeSHA256 returns the lowercase hex SHA-256 of a file. The job
// ledger keys resume decisions on it and model downloads verify with it.
func ComputeSHA256(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %q: %w", path, err)
	}
	defer f.Close()

	sum, err := ComputeSHA256FromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to read file %q: %w", path, err)
	}
	return sum, nil
}

// ComputeSHA256FromReader hashes everything r yields.
func ComputeSHA256FromReader(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader cannot be nil")
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeSHA256FromBytes hashes an in-memory buffer.
func ComputeSHA256FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether the file at path hashes to expectedHash
// (hex, any case). A malformed expected hash is an error.
func VerifyChecksum(path string, expectedHash string) (bool, error) {
	if len(expectedHash) != sha256.Size*2 {
		return false, fmt.Errorf("invalid SHA256 hash length: expected %d characters, got %d", sha256.Size*2, len(expectedHash))
	}
	if _, err := hex.DecodeString(expectedHash); err != nil {
		return false, fmt.Errorf("invalid SHA256 hash format: %w", err)
	}

	computed, err := ComputeSHA256(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(computed, expectedHash), nil
}
