package utils

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
)

// UnpackTarGz extracts a .tar.gz bundle into dstFolder using the system tar.
func UnpackTarGz(tarGzFile string, dstFolder string) error {
	cmd := exec.Command("tar", "-xzf", tarGzFile, "-C", dstFolder)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to unpack tar.gz file: %w", err)
	}
	return nil
}

// IsTarGz sniffs the first bytes of file. Directories and unreadable paths are not bundles.
func IsTarGz(file string) bool {
	fileHandle, err := os.Open(file)
	if err != nil {
		return false
	}
	defer fileHandle.Close()

	buffer := make([]byte, 512) // Read the first 512 bytes for MIME detection
	n, err := fileHandle.Read(buffer)
	if err != nil {
		return false
	}

	mimeType := http.DetectContentType(buffer[:n])
	return mimeType == "application/x-gzip" || mimeType == "application/gzip"
}
