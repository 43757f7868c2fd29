package domain

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
)

const (
	// DefaultEntropyThreshold is the score above which content is treated as encrypted.
	DefaultEntropyThreshold = 7.0
	// DefaultSampleSize is how many leading bytes of a file are scored.
	DefaultSampleSize = 4096
	// MaxEntropy is the score of uniformly distributed bytes.
	MaxEntropy = 8.0
)

// DefaultLockedExtensions mark files that are already encrypted and are not rescored.
var DefaultLockedExtensions = []string{".locked"}

// CalculateShannonEntropy returns the Shannon entropy of data in bits per byte.
// Constant data scores 0.0, uniformly random data approaches 8.0.
func CalculateShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var frequencies [256]int
	for _, b := range data {
		frequencies[b]++
	}

	entropy := 0.0
	dataLen := float64(len(data))

	for _, freq := range frequencies {
		if freq > 0 {
			probability := float64(freq) / dataLen
			entropy -= probability * math.Log2(probability)
		}
	}

	return entropy
}

// EntropyClassifier is stateless; escalation counting lives in ProtectionState.
type EntropyClassifier struct {
	Threshold        float64
	SampleSize       int
	LockedExtensions []string
}

// NewEntropyClassifier returns a classifier with the given threshold and sample
// size, falling back to the defaults for non-positive values.
func NewEntropyClassifier(threshold float64, sampleSize int, lockedExtensions []string) *EntropyClassifier {
	if threshold <= 0 {
		threshold = DefaultEntropyThreshold
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &EntropyClassifier{
		Threshold:        threshold,
		SampleSize:       sampleSize,
		LockedExtensions: lockedExtensions,
	}
}

// Score computes the entropy of buf.
func (c *EntropyClassifier) Score(buf []byte) float64 {
	return CalculateShannonEntropy(buf)
}

// IsSuspicious reports whether score strictly exceeds the threshold.
func (c *EntropyClassifier) IsSuspicious(score float64) bool {
	return score > c.Threshold
}

// ShouldSkip reports whether path already carries an encrypted-marker extension.
func (c *EntropyClassifier) ShouldSkip(path string) bool {
	ext := filepath.Ext(path)
	if ext == "" {
		return false
	}
	for _, locked := range c.LockedExtensions {
		if strings.EqualFold(ext, locked) {
			return true
		}
	}
	return false
}

// ScoreReader scores up to SampleSize leading bytes of r.
// It returns ErrEmptySample when nothing could be read; empty content never classifies.
func (c *EntropyClassifier) ScoreReader(r io.Reader) (float64, int, error) {
	buffer := make([]byte, c.SampleSize)
	n, err := io.ReadFull(r, buffer)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, n, err
	}
	if n == 0 {
		return 0, 0, ErrEmptySample
	}
	return c.Score(buffer[:n]), n, nil
}

// ScoreFile opens path and scores its leading bytes.
func (c *EntropyClassifier) ScoreFile(path string) (float64, int, error) {
	file, err := openForSampling(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	score, n, err := c.ScoreReader(file)
	if err != nil && !errors.Is(err, ErrEmptySample) {
		return 0, n, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return score, n, err
}

// FileEntropy is the result of scoring one file.
type FileEntropy struct {
	FilePath   string
	Entropy    float64
	Threshold  float64
	SampleSize int
	Suspicious bool
}

// AnalyzeFile scores path and applies the decision rule.
func (c *EntropyClassifier) AnalyzeFile(path string) (*FileEntropy, error) {
	score, n, err := c.ScoreFile(path)
	if err != nil {
		return nil, err
	}

	return &FileEntropy{
		FilePath:   path,
		Entropy:    score,
		Threshold:  c.Threshold,
		SampleSize: n,
		Suspicious: c.IsSuspicious(score),
	}, nil
}
