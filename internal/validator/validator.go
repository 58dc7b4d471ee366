package validator

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/stemsi/nexus-backend/internal/model"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		register(v)
	}
}

// New returns a standalone validator configured like Gin's, for code paths
// that validate outside of a request (CLIs, generated papers).
func New() *govalidator.Validate {
	v := govalidator.New(govalidator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	register(v)
	return v
}

func register(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	_ = v.RegisterValidation("subject", func(fl govalidator.FieldLevel) bool {
		return model.Subject(fl.Field().String()).Valid()
	})

	v.RegisterStructValidation(validateQuestion, model.Question{})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	_ = v.RegisterTranslation("subject", trans,
		func(ut ut.Translator) error {
			return ut.Add("subject", "{0} must be one of Physics, Chemistry or Mathematics", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			msg, _ := ut.T("subject", fe.Field())
			return msg
		},
	)

	for tag, text := range questionMessages {
		tag, text := tag, text
		_ = v.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error {
				return ut.Add(tag, text, true)
			},
			func(ut ut.Translator, fe govalidator.FieldError) string {
				msg, _ := ut.T(tag, fe.Field())
				return msg
			},
		)
	}
}

var questionMessages = map[string]string{
	"mcq_options":    "{0} must list at least two choices for a multiple choice question",
	"option_answer":  "{0} must be distinct zero-based option indices such as 0 or 0,2",
	"no_options":     "{0} must be empty for a numerical question",
	"numeric_answer": "{0} must be a number",
}

// validateQuestion enforces the per-type shape of a question: choices and
// an index answer for MCQ, no choices and a numeric answer for Numerical.
func validateQuestion(sl govalidator.StructLevel) {
	q := sl.Current().Interface().(model.Question)

	switch q.Type {
	case model.QuestionTypeMCQ:
		if len(q.Options) < 2 {
			sl.ReportError(q.Options, "options", "Options", "mcq_options", "")
			return
		}
		if q.CorrectAnswer != "" && !validOptionAnswer(q.CorrectAnswer, len(q.Options)) {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "option_answer", "")
		}
	case model.QuestionTypeNumerical:
		if len(q.Options) > 0 {
			sl.ReportError(q.Options, "options", "Options", "no_options", "")
		}
		if q.CorrectAnswer != "" {
			if _, err := strconv.ParseFloat(strings.TrimSpace(q.CorrectAnswer), 64); err != nil {
				sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "numeric_answer", "")
			}
		}
	}
}

func validOptionAnswer(answer string, n int) bool {
	seen := make(map[int]bool)
	for _, part := range strings.Split(answer, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:]] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// BindQuery binds and validates query parameters into dst.
func BindQuery(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindQuery(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
