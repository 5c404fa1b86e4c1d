// Package wardstat defines ward-level statistic records and the validation
// contract shared by the HTTP API, spreadsheet import and the CLI.
package wardstat

import (
	"strings"
	"time"
)

// Record is one (ward, category) measurement of a dataset.
type Record struct {
	ID         string    `json:"id"`
	Dataset    string    `json:"dataset"`
	WardNumber int       `json:"wardNumber"`
	Category   string    `json:"category"`
	Value      int64     `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key identifies the unique (ward, category) slot of a record within a dataset.
type Key struct {
	WardNumber int
	Category   string
}

func (r Record) Key() Key {
	return Key{WardNumber: r.WardNumber, Category: r.Category}
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeRequired    = "required"
	CodeNotInteger  = "not_integer"
	CodeOutOfRange  = "out_of_range"
	CodeNegative    = "negative"
	CodeInvalidEnum = "invalid_enum"
	CodeDuplicate   = "duplicate"
	CodeTooLong     = "too_long"
	CodeInvalid     = "invalid"
)

// FieldErrors is the full list of violations for one input.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field has at least one error.
func (e FieldErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// FindDuplicate scans existing for a record sharing the candidate's ward and
// category, ignoring the record with id editID. The check is advisory; the
// store's unique constraint is what guarantees one record per slot.
func FindDuplicate(existing []Record, candidate Record, editID string) (Record, bool) {
	for _, r := range existing {
		if editID != "" && r.ID == editID {
			continue
		}
		if r.Dataset != "" && candidate.Dataset != "" && r.Dataset != candidate.Dataset {
			continue
		}
		if r.WardNumber == candidate.WardNumber && r.Category == candidate.Category {
			return r, true
		}
	}
	return Record{}, false
}
