package scan

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/positioner/internal/position"
)

// CSVWriter writes scan rows, one record per point.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter wraps w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the point and timestamp columns, a target and a
// readback column per field, and the snapshot id.
func (c *CSVWriter) WriteHeader(fields []string) error {
	header := []string{"point", "timestamp"}
	for _, f := range fields {
		header = append(header, f+"_target")
	}
	header = append(header, fields...)
	header = append(header, "snapshot_id")
	return c.w.Write(header)
}

// WriteRow writes one row. width is the number of fields; missing or null
// values are written empty.
func (c *CSVWriter) WriteRow(row Row, width int) error {
	rec := []string{strconv.Itoa(row.Point), row.At.Format(time.RFC3339Nano)}
	rec = append(rec, cells(row.Target, width)...)
	rec = append(rec, cells(row.Position, width)...)
	rec = append(rec, row.SnapshotID)
	return c.w.Write(rec)
}

// WriteResult writes the header and every row, then flushes.
func (c *CSVWriter) WriteResult(res *Result) error {
	if err := c.WriteHeader(res.Fields); err != nil {
		return err
	}
	for _, row := range res.Rows {
		if err := c.WriteRow(row, len(res.Fields)); err != nil {
			return err
		}
	}
	return c.Flush()
}

// Flush writes any buffered data.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

func cells(p position.Position, width int) []string {
	out := make([]string, width)
	vals, err := position.ToNumberArray(p)
	if err != nil {
		return out
	}
	for i := 0; i < width && i < len(vals); i++ {
		if vals[i].Set {
			out[i] = strconv.FormatFloat(vals[i].V, 'g', -1, 64)
		}
	}
	return out
}
