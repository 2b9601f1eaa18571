// Package roster manages the list of location ids the pipeline processes:
// loading it from a one-row CSV file and building it from the upstream
// countries and locations endpoints.
package roster

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load reads the roster file: one row of comma-separated location ids.
// The file is read once at startup and treated as static configuration.
func Load(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	record, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	ids := make([]int64, 0, len(record))
	for _, field := range record {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("roster entry %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("roster %s contains no location ids", path)
	}
	return ids, nil
}

// Save writes location ids as a single CSV row.
func Save(path string, ids []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create roster: %w", err)
	}
	defer f.Close()

	record := make([]string, len(ids))
	for i, id := range ids {
		record[i] = strconv.FormatInt(id, 10)
	}

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	w.Flush()
	return w.Error()
}
