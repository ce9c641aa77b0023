package domain

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"math"
)

// NullFloat is an optional measurement. It is a plain value so copies never
// alias the baseline they were taken from.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float wraps a present value.
func Float(v float64) NullFloat { return NullFloat{Float64: v, Valid: true} }

// Get returns the value and whether it is present.
func (n NullFloat) Get() (float64, bool) { return n.Float64, n.Valid }

// Scan implements sql.Scanner. NaN values are read as absent.
func (n *NullFloat) Scan(src any) error {
	var v sql.NullFloat64
	if err := v.Scan(src); err != nil {
		return err
	}
	n.Float64, n.Valid = v.Float64, v.Valid && !math.IsNaN(v.Float64)
	return nil
}

// Value implements driver.Valuer.
func (n NullFloat) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Float64, nil
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*n = NullFloat{}
		return nil
	}
	*n = Float(*v)
	return nil
}

// NullInt is an optional integer column such as peak_id.
type NullInt struct {
	Int64 int64
	Valid bool
}

// Int wraps a present value.
func Int(v int64) NullInt { return NullInt{Int64: v, Valid: true} }

// Get returns the value and whether it is present.
func (n NullInt) Get() (int64, bool) { return n.Int64, n.Valid }

// Scan implements sql.Scanner.
func (n *NullInt) Scan(src any) error {
	var v sql.NullInt64
	if err := v.Scan(src); err != nil {
		return err
	}
	n.Int64, n.Valid = v.Int64, v.Valid
	return nil
}

// Value implements driver.Valuer.
func (n NullInt) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Int64, nil
}

func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Int64)
}

func (n *NullInt) UnmarshalJSON(data []byte) error {
	var v *int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*n = NullInt{}
		return nil
	}
	*n = Int(*v)
	return nil
}

// NullString is an optional text column such as samp_desc.
type NullString struct {
	String string
	Valid  bool
}

// String wraps a present value.
func String(v string) NullString { return NullString{String: v, Valid: true} }

// Get returns the value and whether it is present.
func (n NullString) Get() (string, bool) { return n.String, n.Valid }

// Scan implements sql.Scanner.
func (n *NullString) Scan(src any) error {
	var v sql.NullString
	if err := v.Scan(src); err != nil {
		return err
	}
	n.String, n.Valid = v.String, v.Valid
	return nil
}

// Value implements driver.Valuer.
func (n NullString) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.String, nil
}

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *NullString) UnmarshalJSON(data []byte) error {
	var v *string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*n = NullString{}
		return nil
	}
	*n = String(*v)
	return nil
}
