package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Value is a single raw feature value: either a categorical string or a number.
type Value struct {
	str   string
	num   float64
	isNum bool
	set   bool
}

func String(s string) Value    { return Value{str: s, set: true} }
func Number(n float64) Value   { return Value{num: n, isNum: true, set: true} }
func Int(n int) Value          { return Number(float64(n)) }
func (v Value) IsNumber() bool { return v.set && v.isNum }

// Str returns the categorical string, if v holds one.
func (v Value) Str() (string, bool) {
	if !v.set || v.isNum {
		return "", false
	}
	return v.str, true
}

// Float returns the numeric value, if v holds one.
func (v Value) Float() (float64, bool) {
	if !v.set || !v.isNum {
		return 0, false
	}
	return v.num, true
}

func (v Value) String() string {
	switch {
	case !v.set:
		return ""
	case v.isNum:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return v.str
	}
}

func (v Value) kindName() string {
	switch {
	case !v.set:
		return "nothing"
	case v.isNum:
		return "a number"
	default:
		return "a string"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case !v.set:
		return []byte("null"), nil
	case v.isNum:
		return json.Marshal(v.num)
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty feature value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 'n':
		*v = Value{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("feature value must be a string or a number: %s", data)
	}
	*v = Number(n)
	return nil
}

// Record is one raw input sample keyed by feature name.
type Record map[string]Value

// Keys returns the record's feature names sorted.
func (r Record) Keys() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
