//go:build !windows

package domain

import (
	"fmt"
	"os"
)

// openForSampling opens a file for entropy sampling.
func openForSampling(filePath string) (*os.File, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	return file, nil
}
