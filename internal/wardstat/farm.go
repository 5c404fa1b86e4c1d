package wardstat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"digiprofile/api/internal/geo"
)

// Farm is an agricultural institution registered in a ward.
type Farm struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	WardNumber        int           `json:"wardNumber"`
	FarmType          string        `json:"farmType,omitempty"`
	OwnershipType     string        `json:"ownershipType,omitempty"`
	OwnerName         string        `json:"ownerName,omitempty"`
	OwnerContact      string        `json:"ownerContact,omitempty"`
	Description       string        `json:"description,omitempty"`
	TotalAreaHectares float64       `json:"totalAreaHectares"`
	HasIrrigation     bool          `json:"hasIrrigation"`
	IrrigationSource  string        `json:"irrigationSource,omitempty"`
	SoilType          string        `json:"soilType,omitempty"`
	MainCrops         []string      `json:"mainCrops"`
	Livestock         []string      `json:"livestock"`
	Geometry          *geo.Geometry `json:"geometry,omitempty"`
	Verified          bool          `json:"verified"`
	Media             []FarmMedia   `json:"media,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// FarmMedia is a photo or document attached to a farm and kept in object storage.
type FarmMedia struct {
	ID          string    `json:"id"`
	FarmID      string    `json:"farmId"`
	ObjectKey   string    `json:"objectKey"`
	ContentType string    `json:"contentType"`
	Caption     string    `json:"caption,omitempty"`
	IsPrimary   bool      `json:"isPrimary"`
	SizeBytes   int64     `json:"sizeBytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (f Farm) MapID() string               { return f.ID }
func (f Farm) MapGeometry() *geo.Geometry { return f.Geometry }

func (f Farm) MapProperties() map[string]any {
	return map[string]any{
		"id":         f.ID,
		"name":       f.Name,
		"wardNumber": f.WardNumber,
		"farmType":   f.FarmType,
	}
}

// FarmInput is the writable part of a farm as posted by clients. Enum fields
// are matched after trimming and upper-casing.
type FarmInput struct {
	Name              string        `json:"name" validate:"required,max=200"`
	WardNumber        int           `json:"wardNumber" validate:"ward"`
	FarmType          string        `json:"farmType" validate:"omitempty,oneof=CROP LIVESTOCK MIXED POULTRY FISHERY HORTICULTURE OTHER"`
	OwnershipType     string        `json:"ownershipType" validate:"omitempty,oneof=PRIVATE COOPERATIVE COMMUNITY GOVERNMENT LEASED"`
	OwnerName         string        `json:"ownerName" validate:"max=200"`
	OwnerContact      string        `json:"ownerContact" validate:"max=200"`
	Description       string        `json:"description" validate:"max=4000"`
	TotalAreaHectares float64       `json:"totalAreaHectares" validate:"gte=0"`
	HasIrrigation     bool          `json:"hasIrrigation"`
	IrrigationSource  string        `json:"irrigationSource" validate:"omitempty,oneof=CANAL TUBEWELL RIVER POND RAINWATER NONE OTHER"`
	SoilType          string        `json:"soilType" validate:"omitempty,oneof=LOAMY CLAY SANDY SILTY ALLUVIAL OTHER"`
	MainCrops         []string      `json:"mainCrops" validate:"max=50,dive,max=100"`
	Livestock         []string      `json:"livestock" validate:"max=50,dive,max=100"`
	Geometry          *geo.Geometry `json:"geometry"`
	Verified          bool          `json:"verified"`
}

type maxWardKey struct{}

var farmValidator = newFarmValidator()

func newFarmValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidationCtx("ward", func(ctx context.Context, fl validator.FieldLevel) bool {
		maxWard, _ := ctx.Value(maxWardKey{}).(int)
		ward := fl.Field().Int()
		return ward >= 1 && ward <= int64(maxWard)
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(FarmInput)
		if !in.HasIrrigation && in.IrrigationSource != "" && in.IrrigationSource != "NONE" {
			sl.ReportError(in.IrrigationSource, "irrigationSource", "IrrigationSource", "irrigation", "")
		}
		if in.Geometry != nil {
			if err := geo.ValidateGeometry(in.Geometry); err != nil {
				sl.ReportError(in.Geometry, "geometry", "Geometry", "geometry", err.Error())
			}
		}
	}, FarmInput{})
	return v
}

// ValidateFarm normalizes in and returns the farm it describes.
func ValidateFarm(in FarmInput, maxWard int) (Farm, FieldErrors) {
	in = FarmInput{
		Name:              strings.TrimSpace(in.Name),
		WardNumber:        in.WardNumber,
		FarmType:          strings.ToUpper(strings.TrimSpace(in.FarmType)),
		OwnershipType:     strings.ToUpper(strings.TrimSpace(in.OwnershipType)),
		OwnerName:         strings.TrimSpace(in.OwnerName),
		OwnerContact:      strings.TrimSpace(in.OwnerContact),
		Description:       strings.TrimSpace(in.Description),
		TotalAreaHectares: in.TotalAreaHectares,
		HasIrrigation:     in.HasIrrigation,
		IrrigationSource:  strings.ToUpper(strings.TrimSpace(in.IrrigationSource)),
		SoilType:          strings.ToUpper(strings.TrimSpace(in.SoilType)),
		MainCrops:         cleanList(in.MainCrops),
		Livestock:         cleanList(in.Livestock),
		Geometry:          in.Geometry,
		Verified:          in.Verified,
	}

	ctx := context.WithValue(context.Background(), maxWardKey{}, maxWard)
	if err := farmValidator.StructCtx(ctx, in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Farm{}, FieldErrors{{Field: "", Code: CodeInvalid, Message: err.Error()}}
		}
		return Farm{}, farmFieldErrors(verrs, maxWard)
	}

	return Farm{
		Name:              in.Name,
		WardNumber:        in.WardNumber,
		FarmType:          in.FarmType,
		OwnershipType:     in.OwnershipType,
		OwnerName:         in.OwnerName,
		OwnerContact:      in.OwnerContact,
		Description:       in.Description,
		TotalAreaHectares: in.TotalAreaHectares,
		HasIrrigation:     in.HasIrrigation,
		IrrigationSource:  in.IrrigationSource,
		SoilType:          in.SoilType,
		MainCrops:         in.MainCrops,
		Livestock:         in.Livestock,
		Geometry:          in.Geometry,
		Verified:          in.Verified,
	}, nil
}

// farmFieldErrors maps validator failures onto the API's field error codes.
func farmFieldErrors(verrs validator.ValidationErrors, maxWard int) FieldErrors {
	errs := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		switch fe.Tag() {
		case "required":
			errs = append(errs, fieldError(field, CodeRequired))
		case "max":
			unit := "characters"
			if fe.Kind() == reflect.Slice {
				unit = "items"
			}
			errs = append(errs, FieldError{Field: field, Code: CodeTooLong, Message: fmt.Sprintf("%s must be at most %s %s", field, fe.Param(), unit)})
		case "gte":
			errs = append(errs, fieldError(field, CodeNegative))
		case "oneof":
			errs = append(errs, FieldError{
				Field:   field,
				Code:    CodeInvalidEnum,
				Message: fmt.Sprintf("%s must be one of %s", field, strings.Join(strings.Fields(fe.Param()), ", ")),
			})
		case "ward":
			errs = append(errs, FieldError{Field: field, Code: CodeOutOfRange, Message: fmt.Sprintf("ward number must be between 1 and %d", maxWard)})
		case "irrigation":
			errs = append(errs, FieldError{Field: field, Code: CodeInvalid, Message: "irrigationSource requires hasIrrigation"})
		case "geometry":
			errs = append(errs, FieldError{Field: field, Code: CodeInvalid, Message: fe.Param()})
		default:
			errs = append(errs, FieldError{Field: field, Code: CodeInvalid, Message: fe.Error()})
		}
	}
	return errs
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(v)]; ok {
			continue
		}
		seen[strings.ToLower(v)] = struct{}{}
		out = append(out, v)
	}
	return out
}
