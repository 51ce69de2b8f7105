package content

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

type inputValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newInputValidator() (*inputValidator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	if err := validate.RegisterValidation("jlpt", func(fl validator.FieldLevel) bool {
		return Level(fl.Field().String()).Valid()
	}); err != nil {
		return nil, fmt.Errorf("failed to register jlpt validation: %w", err)
	}
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		q := sl.Current().Interface().(QuestionInput)
		if q.Answer != "" && len(q.Options) > 0 && !slices.Contains(q.Options, q.Answer) {
			sl.ReportError(q.Answer, "Answer", "Answer", "answer_in_options", "")
		}
	}, QuestionInput{})

	messages := map[string]string{
		"jlpt":              "{0} must be one of N5, N4, N3, N2, N1",
		"answer_in_options": "{0} must equal one of the options",
	}
	for tag, message := range messages {
		tag, message := tag, message
		if err := validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		}); err != nil {
			return nil, fmt.Errorf("failed to register %s translation: %w", tag, err)
		}
	}

	return &inputValidator{validate: validate, translator: trans}, nil
}

// check validates v, skipping the named fields, and converts the first failure into a ValidationError.
func (v *inputValidator) check(value any, except ...string) error {
	var err error
	if len(except) > 0 {
		err = v.validate.StructExcept(value, except...)
	} else {
		err = v.validate.Struct(value)
	}
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("validate.Struct() > %w", err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, fe.Translate(v.translator))
	}
	return &ValidationError{
		Field:   fieldErrors[0].Field(),
		Message: strings.Join(messages, "; "),
	}
}
