package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotKey returns the object key a built snapshot is published under.
func BuildSnapshotKey(datasetName string, builtAt time.Time, fingerprint string) (string, error) {
	if err := validatePathComponent(datasetName, "dataset name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(fingerprint, "fingerprint"); err != nil {
		return "", err
	}
	if len(fingerprint) > 12 {
		fingerprint = fingerprint[:12]
	}
	ts := builtAt.UTC()
	return path.Join(
		"datasets",
		datasetName,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("snapshot-%s-%s.parquet", ts.Format("20060102T150405Z"), fingerprint),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
