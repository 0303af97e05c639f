package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryInput struct {
	Tenant string `json:"tenant_id" validate:"required,tenantid"`
	Query  string `json:"query" validate:"required,notblank"`
	K      int    `json:"k" validate:"omitempty,min=1,max=50"`
	Limit  int    `json:"limit" validate:"omitempty,oneof=250 450"`
}

func TestGlobal(t *testing.T) {
	v1 := Global()
	v2 := Global()
	require.NotNil(t, v1)
	assert.Same(t, v1, v2)
}

func TestValidate_OK(t *testing.T) {
	errs := New().ValidateWithLang(queryInput{Tenant: "tn_abc", Query: "hello", K: 5, Limit: 250}, LangEN)
	assert.Nil(t, errs)
	assert.False(t, errs.HasErrors())
}

func TestValidateWithLang(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		in    queryInput
		field string
		tag   string
	}{
		{"missing tenant", queryInput{Query: "q"}, "tenant_id", "required"},
		{"bad tenant", queryInput{Tenant: "-bad tenant", Query: "q"}, "tenant_id", TagTenantID},
		{"blank query", queryInput{Tenant: "tn_abc", Query: "   "}, "query", TagNotBlank},
		{"k too large", queryInput{Tenant: "tn_abc", Query: "q", K: 51}, "k", "max"},
		{"bad limit", queryInput{Tenant: "tn_abc", Query: "q", Limit: 300}, "limit", "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateWithLang(tt.in, LangEN)
			require.True(t, errs.HasErrors())
			assert.Equal(t, tt.field, errs.Errors[0].Field)
			assert.Equal(t, tt.tag, errs.Errors[0].Tag)
			assert.NotEmpty(t, errs.Errors[0].Message)
		})
	}
}

func TestValidateWithLang_Translations(t *testing.T) {
	v := New()
	in := queryInput{Tenant: "bad tenant!", Query: "q"}

	en := v.ValidateWithLang(in, LangEN)
	require.True(t, en.HasErrors())
	assert.True(t, strings.HasPrefix(en.Errors[0].Message, "tenant_id must start with"))

	zh := v.ValidateWithLang(in, LangZH)
	require.True(t, zh.HasErrors())
	assert.Contains(t, zh.Errors[0].Message, "必须以字母或数字开头")

	fallback := v.ValidateWithLang(in, "fr")
	assert.Equal(t, en.Errors[0].Message, fallback.Errors[0].Message)
}

func TestValidateVar(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateVar("tn_abc", TagTenantID))
	assert.Error(t, v.ValidateVar("has space", TagNoWhitespace))
	assert.Error(t, v.ValidateVar(" padded ", TagTrimmed))
	assert.NoError(t, v.ValidateVar("trimmed", TagTrimmed))
}

func TestValidationErrors(t *testing.T) {
	var nilErrs *ValidationErrors
	assert.False(t, nilErrs.HasErrors())
	assert.Equal(t, "", nilErrs.Error())
	assert.Nil(t, nilErrs.Messages())

	errs := &ValidationErrors{Errors: []FieldError{
		{Field: "a", Message: "a bad"},
		{Field: "a", Message: "a worse"},
		{Field: "b", Message: "b bad"},
	}}
	assert.Equal(t, "validation failed: a bad; a worse; b bad", errs.Error())
	assert.Equal(t, []string{"a bad", "a worse", "b bad"}, errs.Messages())

	single := NewValidationError("x", "required", "x is required")
	assert.Equal(t, "x", single.Errors[0].Field)
}
