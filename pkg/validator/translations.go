package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

var customTranslations = map[string]map[string]string{
	LangEN: {
		TagTenantID:     "{0} must start with a letter or digit and contain only letters, digits, '_', '-', '.', ':' (max 128 characters)",
		TagNotBlank:     "{0} must not be blank",
		TagNoWhitespace: "{0} must not contain whitespace characters",
		TagTrimmed:      "{0} must not have leading or trailing spaces",
	},
	LangZH: {
		TagTenantID:     "{0}必须以字母或数字开头，只能包含字母、数字和 _ - . :（最多128个字符）",
		TagNotBlank:     "{0}不能为空白",
		TagNoWhitespace: "{0}不能包含空白字符",
		TagTrimmed:      "{0}不能有前导或尾随空格",
	},
}

func (v *Validator) registerCustomTranslations() {
	for lang, messages := range customTranslations {
		trans := v.GetTranslator(lang)
		for tag, message := range messages {
			registerTranslation(v.validate, trans, tag, message)
		}
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	if trans == nil {
		return
	}
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
