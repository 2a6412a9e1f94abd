// Package exporter writes timestamped copies of a stored collection.
package exporter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/chenoh1990/scraping-assignment/store"
)

const timestampLayout = "2006-01-02_15-04-05"

// Snapshot copies records to {outputDir}/snapshots/{source}_{timestamp}.json and returns the path.
// An empty collection is not exported.
func Snapshot[T any](fs afero.Fs, records []T, outputDir, source string, now time.Time, logger log.FieldLogger) (string, error) {
	logger = logger.WithField("source", source)
	if len(records) == 0 {
		logger.Info("No records found to export")
		return "", nil
	}

	dir := filepath.Join(outputDir, "snapshots")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	fileName := fmt.Sprintf("%s_%s.json", safeName(source), now.Format(timestampLayout))
	filePath := filepath.Join(dir, fileName)

	data, err := store.Encode(records)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s records: %w", source, err)
	}
	if err := afero.WriteFile(fs, filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", filePath, err)
	}

	logger.WithFields(log.Fields{
		"file":  filePath,
		"count": len(records),
	}).Info("Exported snapshot")
	return filePath, nil
}

func safeName(source string) string {
	name := strings.ReplaceAll(source, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ToLower(name)
}
