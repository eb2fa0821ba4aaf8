// Package attendance parses the portal attendance record.
package attendance

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MetadataKeys are record-level fields that are not subject codes.
var MetadataKeys = []string{
	"name",
	"roll_no",
	"university_reg_no",
	"total_percentage",
	"total_present_hours",
	"total_hours",
	"note",
}

// IsMetadataKey reports whether key is a record-level field.
func IsMetadataKey(key string) bool {
	for _, k := range MetadataKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Subject field names in the portal payload.
const (
	FieldPresentHours = "present_hours"
	FieldTotalHours   = "total_hours"
	FieldPercentage   = "attendance_percentage"
)

// ParseError records a subject field that could not be parsed. The field
// still contributes 0 to arithmetic.
type ParseError struct {
	Code  string
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return "subject " + e.Code + ": invalid " + e.Field + " " + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrMissing is the cause of a ParseError for an absent or null field.
var ErrMissing = errors.New("missing value")

// Subject is one attendance row.
type Subject struct {
	Code         string
	PresentHours int
	TotalHours   int
	Percentage   float64

	// Fields holds the raw subject object as received.
	Fields map[string]json.RawMessage
	Errors []*ParseError
}

// Malformed reports whether any numeric field failed to parse.
func (s *Subject) Malformed() bool {
	return len(s.Errors) > 0
}

// Record is a parsed attendance payload. Subjects keep the payload's key
// order, which is the candidate order used to break matcher ties.
type Record struct {
	Subjects []*Subject
	Meta     map[string]json.RawMessage

	index map[string]int
}

// Parse decodes an attendance payload object.
//
// Metadata keys and non-object values are kept in Meta. Numeric subject
// fields that fail to parse count as 0 and are listed in Subject.Errors.
func Parse(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read attendance payload")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("attendance payload must be a JSON object")
	}

	record := &Record{
		Meta:  make(map[string]json.RawMessage),
		index: make(map[string]int),
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read attendance key")
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "failed to read attendance value for %s", key)
		}

		trimmed := bytes.TrimSpace(raw)
		if IsMetadataKey(key) || len(trimmed) == 0 || trimmed[0] != '{' {
			record.Meta[key] = raw
			continue
		}

		fields := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, errors.Wrapf(err, "failed to decode subject %s", key)
		}
		record.add(newSubject(key, fields))
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to read attendance payload end")
	}
	return record, nil
}

// NewRecord builds a record from already parsed subjects, in order.
func NewRecord(subjects ...*Subject) *Record {
	record := &Record{
		Meta:  make(map[string]json.RawMessage),
		index: make(map[string]int),
	}
	for _, s := range subjects {
		record.add(s)
	}
	return record
}

func (r *Record) add(s *Subject) {
	if i, ok := r.index[s.Code]; ok {
		r.Subjects[i] = s
		return
	}
	r.index[s.Code] = len(r.Subjects)
	r.Subjects = append(r.Subjects, s)
}

func newSubject(code string, fields map[string]json.RawMessage) *Subject {
	s := &Subject{Code: code, Fields: fields}

	var err error
	if s.PresentHours, err = ParseHours(fields[FieldPresentHours]); err != nil {
		s.Errors = append(s.Errors, &ParseError{Code: code, Field: FieldPresentHours, Value: string(fields[FieldPresentHours]), Err: err})
	}
	if s.TotalHours, err = ParseHours(fields[FieldTotalHours]); err != nil {
		s.Errors = append(s.Errors, &ParseError{Code: code, Field: FieldTotalHours, Value: string(fields[FieldTotalHours]), Err: err})
	}
	if s.Percentage, err = ParsePercentage(fields[FieldPercentage]); err != nil {
		s.Errors = append(s.Errors, &ParseError{Code: code, Field: FieldPercentage, Value: string(fields[FieldPercentage]), Err: err})
	}
	return s
}

// Codes returns subject codes in payload order.
func (r *Record) Codes() []string {
	codes := make([]string, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		codes = append(codes, s.Code)
	}
	return codes
}

// Subject looks up a subject by exact code.
func (r *Record) Subject(code string) (*Subject, bool) {
	i, ok := r.index[code]
	if !ok {
		return nil, false
	}
	return r.Subjects[i], true
}

// ParseErrors returns the parse errors of every subject.
func (r *Record) ParseErrors() []*ParseError {
	var errs []*ParseError
	for _, s := range r.Subjects {
		errs = append(errs, s.Errors...)
	}
	return errs
}

// SubjectList flattens subjects into objects carrying subject_code, the
// shape the AI query endpoint expects.
func (r *Record) SubjectList() []map[string]json.RawMessage {
	list := make([]map[string]json.RawMessage, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		item := make(map[string]json.RawMessage, len(s.Fields)+1)
		for k, v := range s.Fields {
			item[k] = v
		}
		code, _ := json.Marshal(s.Code)
		item["subject_code"] = code
		list = append(list, item)
	}
	return list
}

// ParseHours reads an hour count sent as a number or a numeric string.
// Fractional values are truncated.
func ParseHours(raw json.RawMessage) (int, error) {
	text, err := scalarText(raw)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errors.Wrap(err, "not a number")
	}
	return int(f), nil
}

// ParsePercentage reads a percentage such as "75.00%" or 75.
func ParsePercentage(raw json.RawMessage) (float64, error) {
	text, err := scalarText(raw)
	if err != nil {
		return 0, err
	}
	text = strings.TrimSpace(strings.TrimSuffix(text, "%"))
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errors.Wrap(err, "not a percentage")
	}
	return f, nil
}

func scalarText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", ErrMissing
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", errors.Wrap(err, "invalid string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", ErrMissing
		}
		return s, nil
	}
	return string(trimmed), nil
}
