package temps

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"
)

// Header returns the column names of the daily CSV for the given topology.
func Header(cpus, cores int) []string {
	cols := []string{"hour", "min", "tot_min"}
	for cpu := 0; cpu < cpus; cpu++ {
		cols = append(cols, fmt.Sprintf("cpu%d", cpu))
		for core := 0; core < cores; core++ {
			cols = append(cols, fmt.Sprintf("cpu%d_c%d", cpu, core))
		}
	}
	return cols
}

// AppendSample adds one row for at to the CSV at path, writing header first
// when the file is new.
func AppendSample(path string, header []string, at time.Time, readings []Reading) error {
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	hour, minute := at.Hour(), at.Minute()
	row := []string{strconv.Itoa(hour), strconv.Itoa(minute), strconv.Itoa(hour*60 + minute)}
	for _, r := range readings {
		row = append(row, strconv.FormatFloat(r.Celsius, 'f', 1, 64))
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

// ReadSamples loads every data row of the CSV at path. Empty cells are dropped.
func ReadSamples(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var samples [][]float64
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make([]float64, 0, len(rec))
		for _, cell := range rec {
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("parse csv value %q: %w", cell, err)
			}
			row = append(row, v)
		}
		samples = append(samples, row)
	}
	return samples, nil
}
