package research

import (
	"github.com/go-playground/validator/v10"

	"github.com/sells-group/property-research/internal/model"
)

// ValidationRule registers one custom validation tag.
type ValidationRule struct {
	Rule func(v *validator.Validate)
}

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func strategyValidator(fl validator.FieldLevel) bool {
	_, err := model.ParseStrategy(fl.Field().String())
	return err == nil
}

func rehabTierValidator(fl validator.FieldLevel) bool {
	_, err := model.ParseRehabTier(fl.Field().String())
	return err == nil
}

// RequestValidationRules returns the tags used by Request.
func RequestValidationRules() []ValidationRule {
	return []ValidationRule{
		{Rule: registerFn("strategy", strategyValidator)},
		{Rule: registerFn("rehab_tier", rehabTierValidator)},
	}
}

// NewValidator returns a validator with the Request rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	for _, r := range RequestValidationRules() {
		r.Rule(v)
	}
	return v
}
