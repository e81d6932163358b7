package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	jsonTimestampKeys = []string{"timestamp", "ts", "time"}
	jsonTokenKeys     = []string{"token", "seq", "id"}
)

// JSONFormat parses one JSON object per line. The timestamp is epoch
// seconds (number) or an RFC3339 string; the token is a string or number.
type JSONFormat struct{}

// NewJSONFormat creates a JSON lines format.
func NewJSONFormat() *JSONFormat {
	return &JSONFormat{}
}

// Name returns the format name.
func (f *JSONFormat) Name() string {
	return FormatJSON
}

// RecordStart returns "" since every line is a record.
func (f *JSONFormat) RecordStart() string {
	return ""
}

// ParseRecord decodes one JSON line. Anything after the object is malformed.
func (f *JSONFormat) ParseRecord(rec Record, dir Direction) (*Sample, error) {
	dec := json.NewDecoder(strings.NewReader(rec.Text))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformed)
	}

	ts, err := jsonTimestamp(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	token, err := jsonToken(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &Sample{
		Token:     token,
		Timestamp: ts,
		Direction: dir,
		Source:    rec.Source,
		LineNum:   rec.LineNum,
	}, nil
}

func jsonTimestamp(obj map[string]interface{}) (time.Time, error) {
	for _, key := range jsonTimestampKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch tv := v.(type) {
		case json.Number:
			secs, err := tv.Float64()
			if err != nil {
				return time.Time{}, fmt.Errorf("field %q: %w", key, err)
			}
			ts, err := epochToTime(secs)
			if err != nil {
				return time.Time{}, fmt.Errorf("field %q: %w", key, err)
			}
			return ts, nil
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, tv); err == nil {
				return ts, nil
			}
			if secs, err := strconv.ParseFloat(tv, 64); err == nil {
				ts, err := epochToTime(secs)
				if err != nil {
					return time.Time{}, fmt.Errorf("field %q: %w", key, err)
				}
				return ts, nil
			}
			return time.Time{}, fmt.Errorf("field %q: unrecognized timestamp %q", key, tv)
		default:
			return time.Time{}, fmt.Errorf("field %q: unsupported type %T", key, v)
		}
	}
	return time.Time{}, fmt.Errorf("no timestamp field (%s)", strings.Join(jsonTimestampKeys, ", "))
}

func jsonToken(obj map[string]interface{}) (string, error) {
	for _, key := range jsonTokenKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch tv := v.(type) {
		case json.Number:
			return tv.String(), nil
		case string:
			if tv == "" {
				return "", fmt.Errorf("field %q is empty", key)
			}
			return tv, nil
		default:
			return "", fmt.Errorf("field %q: unsupported type %T", key, v)
		}
	}
	return "", fmt.Errorf("no token field (%s)", strings.Join(jsonTokenKeys, ", "))
}
