package attendance

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// Messages returned for rejected input.
const (
	MsgMissingFields          = "missing required fields"
	MsgAllotmentPositive      = "allotment must be positive"
	MsgDepartureBeforeArrival = "departure before arrival"
	MsgInvalidInput           = "invalid input"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON field names, not Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// =============================================================================
// CREATE
// =============================================================================

// CreateInput is everything a caretaker supplies to open a record.
// A zero Allotment counts as missing.
type CreateInput struct {
	ChildID       ChildID     `json:"childId" validate:"required"`
	Date          time.Time   `json:"date" validate:"required"`
	ArrivalTime   time.Time   `json:"arrivalTime" validate:"required"`
	DepartureTime *time.Time  `json:"departureTime,omitempty"`
	CaretakerID   CaretakerID `json:"caretakerId" validate:"required"`
	Allotment     float64     `json:"monthHours" validate:"required,gt=0"`
}

// Validate checks field presence and the allotment sign. Checks that need
// the directory or the stored record are done by the Service.
func (in CreateInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return generic.NewValidationError(MsgInvalidInput, generic.FieldError{Error: err.Error()})
	}

	var missing, other []generic.FieldError
	for _, fe := range verrs {
		f := generic.FieldError{Field: fe.Field(), Error: fe.Translate(translator)}
		if fe.Tag() == "required" {
			missing = append(missing, f)
		} else {
			other = append(other, f)
		}
	}
	if len(missing) > 0 {
		return generic.NewValidationError(MsgMissingFields, missing...)
	}
	return generic.NewValidationError(MsgAllotmentPositive, other...)
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdatePatch carries the only fields that may change after creation.
// Nil means "leave unchanged".
type UpdatePatch struct {
	DepartureTime *time.Time `json:"departureTime,omitempty"`
	Allotment     *float64   `json:"monthHours,omitempty" validate:"omitnil,gt=0"`
}

func (p UpdatePatch) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return generic.NewValidationError(MsgInvalidInput, generic.FieldError{Error: err.Error()})
	}
	fields := make([]generic.FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = generic.FieldError{Field: fe.Field(), Error: fe.Translate(translator)}
	}
	return generic.NewValidationError(MsgAllotmentPositive, fields...)
}

// IsEmpty reports whether the patch changes nothing.
func (p UpdatePatch) IsEmpty() bool {
	return p.DepartureTime == nil && p.Allotment == nil
}

func departureError(field string) error {
	return generic.NewValidationError(MsgDepartureBeforeArrival,
		generic.FieldError{Field: field, Error: "departureTime must be later than arrivalTime"})
}
