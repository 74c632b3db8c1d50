//go:build !darwin && !linux

package storage

// Network shares cannot be told apart on this platform.
func detectFilesystemType(string) (string, error) {
	return "unknown", nil
}
