//go:build windows

package domain

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// openShared opens a file with FILE_SHARE_READ|FILE_SHARE_WRITE so that a file
// held open for writing by an encryption loop can still be sampled.
func openShared(filePath string) (*os.File, error) {
	pathPtr, err := windows.UTF16PtrFromString(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to convert path: %w", err)
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateFile failed: %w", err)
	}

	file := os.NewFile(uintptr(handle), filePath)
	if file == nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("failed to create os.File from handle")
	}
	return file, nil
}

// openForSampling prefers the shared open and falls back to os.Open.
func openForSampling(filePath string) (*os.File, error) {
	file, err := openShared(filePath)
	if err == nil {
		return file, nil
	}

	file, err2 := os.Open(filePath)
	if err2 == nil {
		return file, nil
	}

	return nil, fmt.Errorf("cannot open file (shared: %v, os.Open: %w)", err, err2)
}
