package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"veritag/internal/usecase"
)

// CSVSource reads the bulk registry feed. Expected header:
// identifier,name,batch,location,manufactured_at,expires_at
// Timestamps are RFC 3339 or plain dates; empty cells mean absent.
type CSVSource struct {
	Path string
}

func (s CSVSource) Rows(_ context.Context) ([]usecase.FeedRow, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read feed header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["identifier"]; !ok {
		return nil, fmt.Errorf("feed missing identifier column")
	}

	var rows []usecase.FeedRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read feed row: %w", err)
		}
		rows = append(rows, usecase.FeedRow{
			Identifier:     cell(record, columns, "identifier"),
			Name:           cell(record, columns, "name"),
			Batch:          cell(record, columns, "batch"),
			Location:       cell(record, columns, "location"),
			ManufacturedAt: parseTime(cell(record, columns, "manufactured_at")),
			ExpiresAt:      parseTime(cell(record, columns, "expires_at")),
		})
	}
	return rows, nil
}

func cell(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
