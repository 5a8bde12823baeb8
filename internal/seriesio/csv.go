// Package seriesio reads and writes named series as CSV tables.
//
// A table has a first column of period labels ("2020-Q1", "2020-03",
// "2020") followed by one column per series. Empty cells and "NaN" are
// missing values. Rows must be consecutive periods of the same unit.
package seriesio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"tsbench/tsdata"
)

// LoadCSV loads the table at path. Labels are parsed with unit.
func LoadCSV(path string, unit tsdata.Unit) (map[string]*tsdata.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	series, err := ReadCSV(f, unit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// ReadCSV reads a table from r. Leading and trailing missing values of each
// series are dropped.
func ReadCSV(r io.Reader, unit tsdata.Unit) (map[string]*tsdata.Series, error) {
	if !unit.Valid() {
		return nil, fmt.Errorf("%w: %d", tsdata.ErrInvalidUnit, unit)
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	// 1. Header: period column then series names
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs a period column and at least one series, got %d columns", len(header))
	}
	names := header[1:]
	for j, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("column %d has no name", j+2)
		}
		if slices.Contains(names[:j], n) {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		names[j] = n
	}

	// 2. Rows
	var (
		start  tsdata.Period
		values = make([][]float64, len(names))
		row    int
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, len(header), len(record))
		}

		p, err := tsdata.ParsePeriod(unit, record[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+2, err)
		}
		if row == 0 {
			start = p
		} else if want := start.Plus(row); p != want {
			return nil, fmt.Errorf("row %d: period %s, expected %s", row+2, p, want)
		}

		for j, s := range record[1:] {
			v, err := parseValue(s)
			if err != nil {
				return nil, fmt.Errorf("parse float at row %d col %d (%q): %w", row+2, j+2, s, err)
			}
			values[j] = append(values[j], v)
		}
		row++
	}
	if row == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	// 3. Series without their missing ends
	out := make(map[string]*tsdata.Series, len(names))
	for j, n := range names {
		s := &tsdata.Series{Start: start, Values: values[j]}
		d := s.Clean()
		if d.IsEmpty() {
			out[n] = &tsdata.Series{Start: start}
			continue
		}
		w, err := s.Window(d)
		if err != nil {
			return nil, err
		}
		out[n] = w
	}
	return out, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || s == "." {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSV writes the series to path, see Write.
func WriteCSV(path string, series map[string]*tsdata.Series) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, series); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return file.Close()
}

// Write writes the series as one table over the union of their domains,
// columns in name order. Series must share a unit.
func Write(w io.Writer, series map[string]*tsdata.Series) error {
	names := make([]string, 0, len(series))
	for n := range series {
		names = append(names, n)
	}
	slices.Sort(names)

	writer := csv.NewWriter(w)

	header := append([]string{"period"}, names...)
	if err := writer.Write(header); err != nil {
		return err
	}
	if len(names) == 0 {
		writer.Flush()
		return writer.Error()
	}

	// Union of the domains
	var (
		unit       tsdata.Unit
		first, end int
		found      bool
	)
	for _, n := range names {
		s := series[n]
		if s.Len() == 0 {
			continue
		}
		if !found {
			unit, first, end, found = s.Unit(), s.Start.Index, s.Start.Index+s.Len(), true
			continue
		}
		if s.Unit() != unit {
			return fmt.Errorf("%w: %q is %s, expected %s", tsdata.ErrIncompatibleUnit, n, s.Unit(), unit)
		}
		first = min(first, s.Start.Index)
		end = max(end, s.Start.Index+s.Len())
	}

	for idx := first; found && idx < end; idx++ {
		p := tsdata.Period{Unit: unit, Index: idx}
		record := make([]string, 0, len(header))
		record = append(record, p.String())
		for _, n := range names {
			v := series[n].Get(p)
			if math.IsNaN(v) {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
