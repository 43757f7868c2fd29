package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"paladin/internal/domain"
)

// ScanSummary counts the outcome of one directory scan.
type ScanSummary struct {
	Scanned    int
	Suspicious int
	Honeypots  int
	Skipped    int
}

// Scanner reports the entropy of every file under a directory without
// triggering any response.
type Scanner struct {
	classifier *domain.EntropyClassifier
	honeypots  *domain.HoneypotManager
}

// NewScanner creates a scanner. honeypots may be nil.
func NewScanner(classifier *domain.EntropyClassifier, honeypots *domain.HoneypotManager) *Scanner {
	return &Scanner{classifier: classifier, honeypots: honeypots}
}

// Scan walks dir and writes one row per regular file to w.
// Snapshot directories are not descended into.
func (s *Scanner) Scan(ctx context.Context, w io.Writer, dir string, onlySuspicious bool) (ScanSummary, error) {
	var summary ScanSummary

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tENTROPY\tBYTES\tVERDICT\tNOTE")
	fmt.Fprintln(tw, "----\t-------\t-----\t-------\t----")

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			summary.Skipped++
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == domain.SnapshotDirName && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}

		if s.honeypots != nil && s.honeypots.IsHoneypot(path) {
			summary.Honeypots++
			if !onlySuspicious {
				fmt.Fprintf(tw, "%s\t-\t-\tHONEYPOT\t\n", rel)
			}
			return nil
		}
		if s.classifier.ShouldSkip(path) {
			summary.Skipped++
			if !onlySuspicious {
				fmt.Fprintf(tw, "%s\t-\t-\tLOCKED\t\n", rel)
			}
			return nil
		}

		result, scoreErr := s.classifier.AnalyzeFile(path)
		switch {
		case errors.Is(scoreErr, domain.ErrEmptySample):
			summary.Skipped++
			if !onlySuspicious {
				fmt.Fprintf(tw, "%s\t-\t0\tEMPTY\t\n", rel)
			}
			return nil
		case scoreErr != nil:
			summary.Skipped++
			if !onlySuspicious {
				fmt.Fprintf(tw, "%s\t-\t-\tERROR\t\n", rel)
			}
			return nil
		}

		summary.Scanned++
		verdict, note := "ok", ""
		if result.Suspicious {
			summary.Suspicious++
			verdict = "SUSPICIOUS"
			note = domain.DescribeHighEntropy(path)
		} else if onlySuspicious {
			return nil
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%d\t%s\t%s\n", rel, result.Entropy, result.SampleSize, verdict, note)
		return nil
	})
	if flushErr := tw.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "\n%d scanned, %d suspicious (> %.2f), %d honeypots, %d skipped\n",
		summary.Scanned, summary.Suspicious, s.classifier.Threshold, summary.Honeypots, summary.Skipped)
	return summary, nil
}

func newScanCommand(opts *options) *cobra.Command {
	var (
		threshold      float64
		onlySuspicious bool
	)

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Report the entropy of every file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Entropy.Threshold = threshold
			}

			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", args[0])
			}

			classifier := domain.NewEntropyClassifier(cfg.Entropy.Threshold, cfg.Entropy.SampleSize, cfg.Entropy.LockedExtensions)
			honeypots, err := domain.NewHoneypotManager(cfg.Honeypots.Names, cfg.Honeypots.Size)
			if err != nil {
				return err
			}

			_, err = NewScanner(classifier, honeypots).Scan(cmd.Context(), cmd.OutOrStdout(), args[0], onlySuspicious)
			return err
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", domain.DefaultEntropyThreshold, "entropy threshold override")
	cmd.Flags().BoolVar(&onlySuspicious, "suspicious", false, "only list files above the threshold")
	return cmd
}
