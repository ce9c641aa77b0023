// Package importer reads TapeStation peak and region exports from CSV so they
// can be loaded into a record store.
//
// Columns are matched by header name; unknown columns are ignored. Empty
// cells, "NA" and "NaN" are read as missing values.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"tapeview/pkg/domain"
)

// Column names shared with the peaks and regions tables.
const (
	ColDatasetID  = "ts_data_id"
	ColWellID     = "well_id"
	ColPeakID     = "peak_id"
	ColSampleDesc = "samp_desc"
	ColPeakMol    = "peak_mol"
	ColIntArea    = "int_area"
	ColSize       = "size"
	ColCalConc    = "cal_conc"
	ColAvgSize    = "avg_size"
)

// ErrMissingColumn reports a required column absent from the header.
type ErrMissingColumn struct {
	Column string
}

func (e ErrMissingColumn) Error() string {
	return fmt.Sprintf("missing required column %q", e.Column)
}

// ReadPeaks parses a peaks table.
func ReadPeaks(r io.Reader) ([]domain.PeakRow, error) {
	t, err := newTable(r, ColDatasetID, ColWellID)
	if err != nil {
		return nil, err
	}
	var rows []domain.PeakRow
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := domain.PeakRow{SampleDescription: rec.optionalText(ColSampleDesc)}
		if row.DatasetID, row.WellID, err = rec.key(); err != nil {
			return nil, lineError(line, err)
		}
		if row.PeakID, err = rec.integer(ColPeakID); err != nil {
			return nil, lineError(line, err)
		}
		for _, f := range []struct {
			col string
			dst *domain.NullFloat
		}{
			{ColPeakMol, &row.PeakMolarity},
			{ColIntArea, &row.IntegratedAreaPct},
			{ColSize, &row.Size},
			{ColCalConc, &row.CalibratedConcentration},
		} {
			if *f.dst, err = rec.number(f.col); err != nil {
				return nil, lineError(line, err)
			}
		}
		rows = append(rows, row)
	}
}

// ReadRegions parses a regions table.
func ReadRegions(r io.Reader) ([]domain.RegionRow, error) {
	t, err := newTable(r, ColDatasetID, ColWellID)
	if err != nil {
		return nil, err
	}
	var rows []domain.RegionRow
	for {
		rec, line, err := t.next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		var row domain.RegionRow
		if row.DatasetID, row.WellID, err = rec.key(); err != nil {
			return nil, lineError(line, err)
		}
		if row.AvgRegionSize, err = rec.number(ColAvgSize); err != nil {
			return nil, lineError(line, err)
		}
		rows = append(rows, row)
	}
}

type table struct {
	reader  *csv.Reader
	columns map[string]int
}

func newTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty csv input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			return nil, ErrMissingColumn{Column: col}
		}
	}
	return &table{reader: reader, columns: columns}, nil
}

type record struct {
	fields  []string
	columns map[string]int
}

func (t *table) next() (record, int, error) {
	fields, err := t.reader.Read()
	if errors.Is(err, io.EOF) {
		return record{}, 0, io.EOF
	}
	if err != nil {
		return record{}, 0, fmt.Errorf("read csv: %w", err)
	}
	line, _ := t.reader.FieldPos(0)
	return record{fields: fields, columns: t.columns}, line, nil
}

func (r record) raw(col string) (string, bool) {
	i, ok := r.columns[col]
	if !ok || i >= len(r.fields) {
		return "", false
	}
	v := strings.TrimSpace(r.fields[i])
	if v == "" || strings.EqualFold(v, "NA") || strings.EqualFold(v, "NaN") {
		return "", false
	}
	return v, true
}

// key returns the join key cells, which must both be present.
func (r record) key() (datasetID, wellID string, err error) {
	for _, c := range []struct {
		col string
		dst *string
	}{{ColDatasetID, &datasetID}, {ColWellID, &wellID}} {
		v, ok := r.raw(c.col)
		if !ok {
			return "", "", fmt.Errorf("column %s: missing key value", c.col)
		}
		*c.dst = v
	}
	return datasetID, wellID, nil
}

func (r record) optionalText(col string) domain.NullString {
	if v, ok := r.raw(col); ok {
		return domain.String(v)
	}
	return domain.NullString{}
}

func (r record) number(col string) (domain.NullFloat, error) {
	v, ok := r.raw(col)
	if !ok {
		return domain.NullFloat{}, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) {
		return domain.NullFloat{}, fmt.Errorf("column %s: %q is not a number", col, v)
	}
	return domain.Float(f), nil
}

func (r record) integer(col string) (domain.NullInt, error) {
	v, ok := r.raw(col)
	if !ok {
		return domain.NullInt{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// peak ids exported from spreadsheets arrive as 1.0
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != math.Trunc(f) {
			return domain.NullInt{}, fmt.Errorf("column %s: %q is not an integer", col, v)
		}
		n = int64(f)
	}
	return domain.Int(n), nil
}

func lineError(line int, err error) error {
	return fmt.Errorf("line %d: %w", line, err)
}
