package patient

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// BMI category labels.
const (
	VerdictUnderweight = "Underweight"
	VerdictNormal      = "Normal weight"
	VerdictOverweight  = "Overweight"
	VerdictObese       = "Obese"
)

// Patient is one record of the collection. BMI and Verdict are derived from
// Height and Weight and are never taken from client input.
type Patient struct {
	ID      string  `json:"id" validate:"min=1"`
	Name    string  `json:"name"`
	City    string  `json:"city"`
	Age     int     `json:"age" validate:"gt=0,lt=120"`
	Gender  Gender  `json:"gender" validate:"oneof=male female other"`
	Height  float64 `json:"height" validate:"gt=0"`
	Weight  float64 `json:"weight" validate:"gt=0"`
	BMI     float64 `json:"bmi"`
	Verdict string  `json:"verdict"`
}

// Derive recomputes BMI and Verdict from Height and Weight.
func (p *Patient) Derive() {
	p.BMI = ComputeBMI(p.Height, p.Weight)
	p.Verdict = VerdictFor(p.BMI)
}

// Validate checks every field constraint and reports all violations at once.
func (p *Patient) Validate() error {
	return toValidationError(validate.Struct(p))
}

// ComputeBMI returns weight / height² rounded to two decimals. A
// non-positive height yields 0 so callers never see Inf or NaN.
func ComputeBMI(height, weight float64) float64 {
	if height <= 0 {
		return 0
	}
	return math.Round(weight/(height*height)*100) / 100
}

func VerdictFor(bmi float64) string {
	switch {
	case bmi < 18.5:
		return VerdictUnderweight
	case bmi < 25:
		return VerdictNormal
	case bmi < 30:
		return VerdictOverweight
	default:
		return VerdictObese
	}
}

// Draft is the create payload. Pointer fields tell an absent field apart
// from a zero value; nulls lists fields sent as JSON null.
type Draft struct {
	ID     *string  `json:"id" validate:"required"`
	Name   *string  `json:"name" validate:"required"`
	City   *string  `json:"city" validate:"required"`
	Age    *int     `json:"age" validate:"required"`
	Gender *Gender  `json:"gender" validate:"required"`
	Height *float64 `json:"height" validate:"required"`
	Weight *float64 `json:"weight" validate:"required"`

	nulls []string
}

// Patient converts a draft into a Patient once every field is present.
// Range and enum checks happen later, on the full record.
func (d Draft) Patient() (Patient, error) {
	if err := toValidationError(validate.Struct(d)); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for i, f := range verr.Fields {
				if slices.Contains(d.nulls, f.Field) {
					verr.Fields[i].Message = msgNotNull
				}
			}
		}
		return Patient{}, err
	}
	return Patient{
		ID:     *d.ID,
		Name:   *d.Name,
		City:   *d.City,
		Age:    *d.Age,
		Gender: *d.Gender,
		Height: *d.Height,
		Weight: *d.Weight,
	}, nil
}

// Update is a partial update payload. Absent fields are left untouched; id
// and the derived fields are not updatable. A field sent as JSON null is
// present without a value and fails Merge.
type Update struct {
	Name   *string  `json:"name,omitempty"`
	City   *string  `json:"city,omitempty"`
	Age    *int     `json:"age,omitempty"`
	Gender *Gender  `json:"gender,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Weight *float64 `json:"weight,omitempty"`

	nulls []string
}

// Merge applies u to p and validates the merged record. Null fields are
// reported first, then any constraint the merged record breaks.
func (u Update) Merge(p Patient) (Patient, error) {
	merged := u.Apply(p)

	var fields []FieldError
	for _, key := range u.nulls {
		fields = append(fields, FieldError{Field: key, Message: msgNotNull})
	}
	if err := merged.Validate(); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return merged, err
		}
		fields = append(fields, verr.Fields...)
	}
	if len(fields) > 0 {
		return merged, &ValidationError{Fields: fields}
	}
	return merged, nil
}

// Apply merges the present fields onto a copy of p and returns the copy with
// derived fields recomputed. The result is not validated.
func (u Update) Apply(p Patient) Patient {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.City != nil {
		p.City = *u.City
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.Height != nil {
		p.Height = *u.Height
	}
	if u.Weight != nil {
		p.Weight = *u.Weight
	}
	p.Derive()
	return p
}

// -- validation --

const msgNotNull = "must not be null"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String && fe.Param() == "1" {
			return "must not be empty"
		}
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	}
	return fmt.Sprintf("failed %q constraint", fe.Tag())
}
