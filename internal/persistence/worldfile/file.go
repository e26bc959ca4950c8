package worldfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes lvl to a temp file next to path and renames it into
// place, so a failed write never truncates an existing level.
func WriteFile(path string, lvl Level) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err := Write(f, lvl); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	ok = true
	return nil
}

// File is an open level file with its header already read.
type File struct {
	*Decoder
	f *os.File
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	d, err := NewDecoder(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{Decoder: d, f: f}, nil
}

func (f *File) Close() error {
	err1 := f.Decoder.Close()
	if err := f.f.Close(); err != nil {
		return err
	}
	return err1
}

// ReadFile decodes the level at path without migrating legacy files.
func ReadFile(path string) (Level, error) {
	f, err := Open(path)
	if err != nil {
		return Level{}, err
	}
	defer f.Close()
	return f.Decode()
}

// Backup copies path byte-for-byte to BackupPath(path). The copy keeps the
// legacy file's gzip framing rather than writing the decoded stream back out,
// so it can be restored over path as is.
func Backup(path string) (string, error) {
	dst := BackupPath(path)
	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("%w: backup: %w", ErrIO, err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// BadPath is where an undecodable level is moved aside.
func BadPath(path string) string { return path + ".bad" }

// SetAside renames an unreadable level to BadPath(path) so the next save
// cannot replace it.
func SetAside(path string) (string, error) {
	dst := BadPath(path)
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("%w: set aside: %w", ErrIO, err)
	}
	return dst, nil
}
