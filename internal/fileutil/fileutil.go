package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ErrTargetExists is returned when a move would replace an existing file.
var ErrTargetExists = errors.New("target already exists")

// MoveResult describes how a move was carried out.
type MoveResult struct {
	CrossDevice bool
	// SourceRemoved is false only when a cross-device copy landed but the
	// source could not be deleted afterwards.
	SourceRemoved bool
}

// renameNoReplace is swapped in tests to simulate cross-device renames.
var renameNoReplace = renameExclusive

// MoveFile moves src to dst without replacing an existing dst. Same-device
// moves are a single rename. Cross-device moves copy into a temporary file
// beside dst, verify it, rename it into place, and only then remove src; any
// failure before that point leaves src untouched and removes the temporary.
func MoveFile(src, dst string) (MoveResult, error) {
	err := renameNoReplace(src, dst)
	if err == nil {
		return MoveResult{SourceRemoved: true}, nil
	}
	if errors.Is(err, os.ErrExist) {
		return MoveResult{}, fmt.Errorf("move %s: %w", dst, ErrTargetExists)
	}
	if !errors.Is(err, syscall.EXDEV) {
		return MoveResult{}, err
	}

	temp, err := tempSibling(dst)
	if err != nil {
		return MoveResult{}, err
	}
	if err := CopyFileVerified(src, temp); err != nil {
		_ = os.Remove(temp)
		return MoveResult{}, fmt.Errorf("copy across devices: %w", err)
	}
	if err := renameNoReplace(temp, dst); err != nil {
		_ = os.Remove(temp)
		if errors.Is(err, os.ErrExist) {
			return MoveResult{}, fmt.Errorf("move %s: %w", dst, ErrTargetExists)
		}
		return MoveResult{}, fmt.Errorf("finalize copy: %w", err)
	}
	result := MoveResult{CrossDevice: true, SourceRemoved: true}
	if err := os.Remove(src); err != nil {
		result.SourceRemoved = false
	}
	return result, nil
}

func tempSibling(dst string) (string, error) {
	file, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}
