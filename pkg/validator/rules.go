package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// 自定义规则标签。
const (
	TagTenantID     = "tenantid"     // 租户 ID：字母数字开头，可含 _ - . :，最长 128
	TagNotBlank     = "notblank"     // 去除空白后非空
	TagNoWhitespace = "nowhitespace" // 不含空白字符
	TagTrimmed      = "trimmed"      // 无首尾空白
)

var tenantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagTenantID, validateTenantID)
	_ = v.validate.RegisterValidation(TagNotBlank, validateNotBlank)
	_ = v.validate.RegisterValidation(TagNoWhitespace, validateNoWhitespace)
	_ = v.validate.RegisterValidation(TagTrimmed, validateTrimmed)
}

// 空值交给 required 处理。
func validateTenantID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return tenantIDRegex.MatchString(value)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateNoWhitespace(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
}

func validateTrimmed(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == strings.TrimSpace(value)
}
