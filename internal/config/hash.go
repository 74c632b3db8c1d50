package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// digestFile returns the hex BLAKE3 digest of the file at path.
func digestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SourceChanged reports whether the file the config was loaded from no
// longer matches SourceHash. Defaults built without a file never change.
func (c *Config) SourceChanged() (bool, error) {
	if c.SourcePath == "" {
		return false, nil
	}
	current, err := digestFile(c.SourcePath)
	if err != nil {
		return false, err
	}
	return current != c.SourceHash, nil
}
