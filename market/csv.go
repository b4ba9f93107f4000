package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// WriteCSV writes candles as timestamp,open,high,low,close,volume rows.
func WriteCSV(w io.Writer, candles []Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		if err := cw.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			f(c.Open),
			f(c.High),
			f(c.Low),
			f(c.Close),
			f(c.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes candles to path.
func SaveCSV(path string, candles []Candle) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(fh, candles); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// ReadCSV parses candles written by WriteCSV. Timestamps may be RFC3339 or
// unix milliseconds. The result is sorted and deduplicated.
func ReadCSV(r io.Reader, symbol string, tf Timeframe) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []Candle
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
			continue
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("line %d: need 6 columns, got %d", line, len(row))
		}

		ts, err := parseTime(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var v [5]float64
		for i := 0; i < 5; i++ {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s %q: %w", line, csvHeader[i+1], row[i+1], err)
			}
		}
		out = append(out, Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  ts,
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    v[4],
		})
	}
	return SortDedupe(out), nil
}

// LoadCSV reads candles from path.
func LoadCSV(path, symbol string, tf Timeframe) ([]Candle, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return ReadCSV(fh, symbol, tf)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
