// Package storage inspects the directory that holds the channel files.
//
// The channel files are rewritten in place without locks or renames, so a
// network filesystem with loose close-to-open consistency makes torn reads
// far more likely. Such directories are reported, not refused.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"9p":     {},
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// DirReport describes the filesystem under a channel directory.
type DirReport struct {
	Path      string `json:"path"`
	Inspected string `json:"inspected"`
	FSType    string `json:"fs_type"`
	Network   bool   `json:"network"`
	Exists    bool   `json:"exists"`
}

// Warning returns a human-readable warning, or "" when the directory is fine.
func (r DirReport) Warning() string {
	if !r.Network {
		return ""
	}
	return fmt.Sprintf(
		"channel directory %q is on network filesystem %q; the command and result files are rewritten in place and may be read half-written. Use a local directory via channel.dir",
		r.Path, r.FSType,
	)
}

// InspectChannelDir reports the filesystem type under dir, walking up to the
// nearest existing parent when dir has not been created yet.
func InspectChannelDir(dir string) (DirReport, error) {
	return inspectWithDetector(dir, detectFilesystemType)
}

func inspectWithDetector(dir string, detector func(string) (string, error)) (DirReport, error) {
	if dir == "" {
		return DirReport{}, fmt.Errorf("channel directory is empty")
	}

	inspectPath, err := nearestExistingPath(dir)
	if err != nil {
		return DirReport{}, fmt.Errorf("resolve channel directory %q: %w", dir, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		return DirReport{}, fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	abs, _ := filepath.Abs(dir)
	return DirReport{
		Path:      dir,
		Inspected: inspectPath,
		FSType:    fsType,
		Network:   isNetworkFilesystem(fsType),
		Exists:    inspectPath == abs,
	}, nil
}

// CheckWritable creates and removes a probe file in dir.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".aebridge-probe-*")
	if err != nil {
		return fmt.Errorf("channel directory %q is not writable: %w", dir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return fmt.Errorf("close probe file: %w", err)
	}
	return os.Remove(name)
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	normalized := strings.TrimSpace(strings.ToLower(fsType))
	_, found := networkFilesystems[normalized]
	return found
}
