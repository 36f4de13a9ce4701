package records

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// The generators behind song and log files are not consistent about numeric
// encoding: the same field shows up as 2000, 2000.0 or "2000" depending on the
// producer. The types below accept all three so a record decodes into its
// declared Go type instead of a loosely typed map.

// Int is an integer that also accepts numeric strings and integral floats.
// null and "" decode to 0.
type Int int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Int) UnmarshalJSON(b []byte) error {
	s, null, err := scalarText(b)
	if err != nil {
		return err
	}
	if null {
		*n = 0
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = Int(i)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("records: %q is not an integer", s)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("records: %q has a fractional part", s)
	}
	*n = Int(f)
	return nil
}

// Float is a float64 that also accepts numeric strings. null and "" decode to 0.
type Float float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	v, ok, err := parseFloat(b)
	if err != nil {
		return err
	}
	if !ok {
		*f = 0
		return nil
	}
	*f = Float(v)
	return nil
}

// NullFloat is a nullable float64 that also accepts numeric strings.
// null and "" decode to an invalid (NULL) value.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *NullFloat) UnmarshalJSON(b []byte) error {
	v, ok, err := parseFloat(b)
	if err != nil {
		return err
	}
	*f = NullFloat{Float64: v, Valid: ok}
	return nil
}

// Value returns nil for NULL, else the float. Suitable as a statement argument.
func (f NullFloat) Value() any {
	if !f.Valid {
		return nil
	}
	return f.Float64
}

// Text is a string that also accepts bare numbers (some log producers write
// userId as 39, others as "39"). null decodes to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		*t = Text(b)
	default:
		return fmt.Errorf("records: expected string or number, got %s", b)
	}
	return nil
}

func parseFloat(b []byte) (float64, bool, error) {
	s, null, err := scalarText(b)
	if err != nil || null {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, fmt.Errorf("records: %q is not a number", s)
	}
	return v, true, nil
}

// scalarText returns the text of a JSON number or string scalar, reporting
// null (or an empty string) separately.
func scalarText(b []byte) (s string, null bool, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return "", true, nil
	}
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s == "", nil
	}
	if b[0] == '{' || b[0] == '[' || b[0] == 't' || b[0] == 'f' {
		return "", false, fmt.Errorf("records: expected number, got %s", b)
	}
	return string(b), false, nil
}
