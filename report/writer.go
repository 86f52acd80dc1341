package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/metrics"
)

func WriteDetailed(w io.Writer, records []metrics.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DetailedHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(DetailedRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteSummary(w io.Writer, summaries []metrics.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		if err := cw.Write(SummaryRow(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Files are the tables written for one comparison.
type Files struct {
	Detailed string
	Summary  string
}

// WriteFiles writes <dir>/detailed_<runID>.csv and <dir>/summary_<runID>.csv.
func WriteFiles(dir, runID string, records []metrics.Record, summaries []metrics.Summary) (Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Files{}, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	files := Files{
		Detailed: filepath.Join(dir, fmt.Sprintf("detailed_%s.csv", runID)),
		Summary:  filepath.Join(dir, fmt.Sprintf("summary_%s.csv", runID)),
	}

	if err := writeFile(files.Detailed, func(w io.Writer) error { return WriteDetailed(w, records) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Summary, func(w io.Writer) error { return WriteSummary(w, summaries) }); err != nil {
		return Files{}, err
	}

	log.Infof("report.WriteFiles: %d rows -> %s, %d summaries -> %s",
		len(records), files.Detailed, len(summaries), files.Summary)
	return files, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
