package wardstat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digiprofile/api/internal/catalog"
)

func incomeDataset(t *testing.T) catalog.Dataset {
	t.Helper()
	ds, ok := catalog.MustLoad().Lookup("ward-wise-annual-income-sustenance")
	require.True(t, ok)
	return ds
}

func raw(t *testing.T, body string) RawInput {
	t.Helper()
	var in RawInput
	require.NoError(t, json.Unmarshal([]byte(body), &in))
	return in
}

func TestValidateAcceptsNumbersAndNumericStrings(t *testing.T) {
	ds := incomeDataset(t)

	rec, errs := Validate(ds, 32, raw(t, `{"wardNumber":3,"category":"TWELVE_MONTHS","value":120}`))
	require.Empty(t, errs)
	assert.Equal(t, Record{Dataset: ds.Slug, WardNumber: 3, Category: "TWELVE_MONTHS", Value: 120}, rec)

	rec, errs = Validate(ds, 32, raw(t, `{"wardNumber":" 7 ","monthsSustained":"UPTO_THREE_MONTHS","households":"0"}`))
	require.Empty(t, errs)
	assert.Equal(t, 7, rec.WardNumber)
	assert.Equal(t, "UPTO_THREE_MONTHS", rec.Category)
	assert.Equal(t, int64(0), rec.Value)
}

func TestValidateReportsEveryField(t *testing.T) {
	ds := incomeDataset(t)

	_, errs := Validate(ds, 32, raw(t, `{}`))
	require.Len(t, errs, 3)
	for _, fe := range errs {
		assert.Equal(t, CodeRequired, fe.Code, fe.Field)
	}
	assert.True(t, errs.Has("wardNumber"))
	assert.True(t, errs.Has("category"))
	assert.True(t, errs.Has("value"))
}

func TestValidateFieldCodes(t *testing.T) {
	ds := incomeDataset(t)
	cases := []struct {
		name  string
		body  string
		field string
		code  string
	}{
		{"fractional ward", `{"wardNumber":2.5,"category":"TWELVE_MONTHS","value":1}`, "wardNumber", CodeNotInteger},
		{"text ward", `{"wardNumber":"two","category":"TWELVE_MONTHS","value":1}`, "wardNumber", CodeNotInteger},
		{"ward zero", `{"wardNumber":0,"category":"TWELVE_MONTHS","value":1}`, "wardNumber", CodeOutOfRange},
		{"ward above max", `{"wardNumber":33,"category":"TWELVE_MONTHS","value":1}`, "wardNumber", CodeOutOfRange},
		{"unknown category", `{"wardNumber":1,"category":"FOREVER","value":1}`, "category", CodeInvalidEnum},
		{"negative value", `{"wardNumber":1,"category":"TWELVE_MONTHS","value":-4}`, "value", CodeNegative},
		{"fractional value", `{"wardNumber":1,"category":"TWELVE_MONTHS","value":"1.25"}`, "value", CodeNotInteger},
		{"null value", `{"wardNumber":1,"category":"TWELVE_MONTHS","value":null}`, "value", CodeRequired},
		{"value above max", `{"wardNumber":1,"category":"TWELVE_MONTHS","value":"3000000000"}`, "value", CodeOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := Validate(ds, 32, raw(t, tc.body))
			require.Len(t, errs, 1)
			assert.Equal(t, tc.field, errs[0].Field)
			assert.Equal(t, tc.code, errs[0].Code)
		})
	}
}

func TestValidateWholeFloatIsInteger(t *testing.T) {
	ds := incomeDataset(t)
	rec, errs := Validate(ds, 32, raw(t, `{"wardNumber":4.0,"category":"TWELVE_MONTHS","value":"10"}`))
	require.Empty(t, errs)
	assert.Equal(t, 4, rec.WardNumber)
}

func TestRawFromValuesRoundTripsThroughValidate(t *testing.T) {
	ds := incomeDataset(t)
	rec, errs := Validate(ds, 32, RawFromValues(5, "SIX_TO_NINE_MONTHS", 42))
	require.Empty(t, errs)
	assert.Equal(t, Key{WardNumber: 5, Category: "SIX_TO_NINE_MONTHS"}, rec.Key())
	assert.Equal(t, int64(42), rec.Value)
}

func TestValidateBoundsValue(t *testing.T) {
	ds := incomeDataset(t)

	_, errs := Validate(ds, 32, RawFromValues(1, "TWELVE_MONTHS", 1_000_000_000_000_000))
	require.Len(t, errs, 1)
	assert.Equal(t, "value", errs[0].Field)
	assert.Equal(t, CodeOutOfRange, errs[0].Code)

	rec, errs := Validate(ds, 32, RawFromValues(1, "TWELVE_MONTHS", MaxValue))
	require.Empty(t, errs)
	assert.Equal(t, int64(MaxValue), rec.Value)

	_, errs = Validate(ds, 32, RawFromStrings("1", "TWELVE_MONTHS", "9223372036854775807"))
	assert.True(t, errs.Has("value"))
}

func TestFieldErrorsMessage(t *testing.T) {
	errs := FieldErrors{{Field: "value", Code: CodeNegative, Message: "value must not be negative"}}
	assert.Equal(t, "validation failed: value: value must not be negative", errs.Error())
	assert.False(t, errs.Has("category"))
}

func TestRawFromStringsReportsBlankCellsAsRequired(t *testing.T) {
	ds := incomeDataset(t)
	_, errs := Validate(ds, 32, RawFromStrings(" ", "SIX_TO_NINE_MONTHS", "1.5"))
	assert.True(t, errs.Has("wardNumber"))
	assert.True(t, errs.Has("value"))
	assert.False(t, errs.Has("category"))

	rec, errs := Validate(ds, 32, RawFromStrings("7", "SIX_TO_NINE_MONTHS", " 12 "))
	require.Empty(t, errs)
	assert.Equal(t, 7, rec.WardNumber)
	assert.Equal(t, int64(12), rec.Value)
}
