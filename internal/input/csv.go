// Package input reads the list of product URLs to process.
package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadLinks reads product URLs from the CSV file at path, one URL in the
// first column per record, preserving file order. A header row whose first
// cell does not look like a URL is skipped. Blank lines and blank first
// cells are ignored.
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer f.Close()

	links, err := parseLinks(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return links, nil
}

func parseLinks(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var links []string
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		cell := strings.TrimSpace(record[0])
		if cell == "" {
			continue
		}
		if first {
			first = false
			if !strings.HasPrefix(cell, "http://") && !strings.HasPrefix(cell, "https://") {
				continue
			}
		}
		links = append(links, cell)
	}
	return links, nil
}
