package wardstat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"digiprofile/api/internal/catalog"
)

// RawInput is an unvalidated record as posted by a form or API client.
// Numbers may arrive as JSON numbers or numeric strings. The category may be
// sent as "category" or under the dataset's own field name, and the value as
// "value" or under the metric name ("households", "population").
type RawInput map[string]json.RawMessage

// MaxValue bounds a single record's count.
const MaxValue = math.MaxInt32

// Validate turns raw input into a record of ds, collecting every field error.
func Validate(ds catalog.Dataset, maxWard int, in RawInput) (Record, FieldErrors) {
	var errs FieldErrors
	rec := Record{Dataset: ds.Slug}

	ward, code := parseInteger(in["wardNumber"])
	switch {
	case code != "":
		errs = append(errs, fieldError("wardNumber", code))
	case ward < 1 || ward > int64(maxWard):
		errs = append(errs, FieldError{
			Field:   "wardNumber",
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("ward number must be between 1 and %d", maxWard),
		})
	default:
		rec.WardNumber = int(ward)
	}

	category, present := firstString(in, "category", ds.CategoryField)
	switch {
	case !present || category == "":
		errs = append(errs, fieldError("category", CodeRequired))
	case !ds.HasCategory(category):
		errs = append(errs, FieldError{
			Field:   "category",
			Code:    CodeInvalidEnum,
			Message: fmt.Sprintf("%q is not a valid %s", category, ds.CategoryField),
		})
	default:
		rec.Category = category
	}

	raw := in["value"]
	if isEmpty(raw) {
		raw = in[string(ds.Metric)]
	}
	value, code := parseInteger(raw)
	switch {
	case code != "":
		errs = append(errs, fieldError("value", code))
	case value < 0:
		errs = append(errs, fieldError("value", CodeNegative))
	case value > MaxValue:
		errs = append(errs, FieldError{
			Field:   "value",
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("value must not exceed %d", MaxValue),
		})
	default:
		rec.Value = value
	}

	if len(errs) > 0 {
		return Record{}, errs
	}
	return rec, nil
}

func fieldError(field, code string) FieldError {
	messages := map[string]string{
		CodeRequired:   "is required",
		CodeNotInteger: "must be a whole number",
		CodeNegative:   "must not be negative",
	}
	return FieldError{Field: field, Code: code, Message: field + " " + messages[code]}
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseInteger returns the integer in raw or a field error code.
func parseInteger(raw json.RawMessage) (int64, string) {
	if isEmpty(raw) {
		return 0, CodeRequired
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, CodeRequired
		}
	} else {
		text = string(bytes.TrimSpace(raw))
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, ""
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, CodeNotInteger
	}
	return int64(f), ""
}

func firstString(in RawInput, keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := in[key]
		if !ok || isEmpty(raw) {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", true
		}
		return strings.TrimSpace(value), true
	}
	return "", false
}

// RawFromValues builds a RawInput from plain values, as used by importers.
func RawFromValues(ward int, category string, value int64) RawInput {
	return RawInput{
		"wardNumber": json.RawMessage(strconv.Itoa(ward)),
		"category":   mustJSON(category),
		"value":      json.RawMessage(strconv.FormatInt(value, 10)),
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// RawFromStrings builds a RawInput from text cells, as read from a
// spreadsheet. Blank cells become missing fields.
func RawFromStrings(ward, category, value string) RawInput {
	in := RawInput{}
	for key, text := range map[string]string{"wardNumber": ward, "category": category, "value": value} {
		if text = strings.TrimSpace(text); text != "" {
			in[key] = mustJSON(text)
		}
	}
	return in
}
