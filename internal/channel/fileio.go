package channel

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

const fileMode = 0o644

// writeFile replaces the content of path, checking open, write and close
// individually. Without create the file must already exist.
func writeFile(fsys afero.Fs, path string, data []byte, create bool) error {
	flags := os.O_WRONLY | os.O_TRUNC
	if create {
		flags |= os.O_CREATE
	}
	f, err := fsys.OpenFile(path, flags, fileMode)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// readFile returns fs.ErrNotExist unwrapped so callers can map it to their
// own sentinel.
func readFile(fsys afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fs.ErrNotExist
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// EnsureDir creates the channel directory if it is missing.
func EnsureDir(fsys afero.Fs, p Paths) error {
	p = p.withDefaults()
	if err := fsys.MkdirAll(p.Dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: p.Dir, Err: err}
	}
	return nil
}
