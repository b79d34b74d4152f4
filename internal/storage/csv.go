package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// decodeUsageCSV reads a usage object with a header row. The date column may
// be named date or time, the value column water_use or total_usage.
func decodeUsageCSV(r io.Reader, wapID string, from, to time.Time) ([]domain.UsageReading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read usage header: %w", err)
	}
	dateCol, valueCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "time":
			dateCol = i
		case "water_use", "total_usage":
			valueCol = i
		}
	}
	if dateCol < 0 || valueCol < 0 {
		return nil, fmt.Errorf("usage csv needs date and water_use columns, got %v", header)
	}

	var out []domain.UsageReading
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read usage line %d: %w", line, err)
		}
		d, err := domain.ParseDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("usage line %d: %w", line, err)
		}
		if !inRange(d, from, to) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("usage line %d: parse water_use: %w", line, err)
		}
		out = append(out, domain.UsageReading{WapID: wapID, Date: d, WaterUse: v})
	}
	return out, nil
}

// encodeUsageCSV writes readings in the layout decodeUsageCSV reads
func encodeUsageCSV(w io.Writer, readings []domain.UsageReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "water_use"}); err != nil {
		return err
	}
	for _, r := range readings {
		if err := cw.Write([]string{
			r.Date.Format(domain.DateLayout),
			strconv.FormatFloat(r.WaterUse, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
