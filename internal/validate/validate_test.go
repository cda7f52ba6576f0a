package validate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocoder89/memberhub/internal/validate"
)

var signup = validate.Schema{
	{Name: "name", Rule: validate.Rule{Kind: validate.KindString, Required: true, MaxLength: 50}},
	{Name: "email", Rule: validate.Rule{Kind: validate.KindEmail, Required: true}},
	{Name: "password", Rule: validate.Rule{Kind: validate.KindString, Required: true, MaxLength: 20}},
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name          string
		candidate     map[string]any
		wantField     string
		wantRule      string
		wantInjection bool
	}{
		{
			name:      "valid",
			candidate: map[string]any{"name": "Alice", "email": "a@example.com", "password": "pw12345"},
		},
		{
			name:      "missing name",
			candidate: map[string]any{"email": "a@example.com", "password": "pw12345"},
			wantField: "name",
			wantRule:  "required",
		},
		{
			name:      "empty password is missing",
			candidate: map[string]any{"name": "Alice", "email": "a@example.com", "password": ""},
			wantField: "password",
			wantRule:  "required",
		},
		{
			name:      "name too long",
			candidate: map[string]any{"name": strings.Repeat("n", 51), "email": "a@example.com", "password": "pw"},
			wantField: "name",
			wantRule:  "max",
		},
		{
			name:      "password too long",
			candidate: map[string]any{"name": "Alice", "email": "a@example.com", "password": strings.Repeat("p", 21)},
			wantField: "password",
			wantRule:  "max",
		},
		{
			name:      "malformed email",
			candidate: map[string]any{"name": "Alice", "email": "not-an-email", "password": "pw"},
			wantField: "email",
			wantRule:  "email",
		},
		{
			name:          "operator object instead of email",
			candidate:     map[string]any{"name": "Alice", "email": map[string]any{"$ne": "x"}, "password": "pw"},
			wantField:     "email",
			wantRule:      "type",
			wantInjection: true,
		},
		{
			name:      "number instead of name",
			candidate: map[string]any{"name": 42.0, "email": "a@example.com", "password": "pw"},
			wantField: "name",
			wantRule:  "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := signup.Validate(tt.candidate)

			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			var ve *validate.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Equal(t, tt.wantRule, ve.Rule)
			assert.Equal(t, tt.wantInjection, ve.Injection)
			assert.Equal(t, tt.wantInjection, validate.IsInjection(err))
			assert.Contains(t, ve.Message, `"`+tt.wantField+`"`)
		})
	}
}

func TestRuleCheckBareString(t *testing.T) {
	rule := validate.Rule{Kind: validate.KindString, Required: true, MaxLength: 20}

	assert.NoError(t, rule.Check("user", "alice"))
	assert.Error(t, rule.Check("user", nil))
	assert.Error(t, rule.Check("user", strings.Repeat("a", 21)))

	err := rule.Check("user", map[string]any{"$ne": "name"})
	assert.True(t, validate.IsInjection(err))

	err = rule.Check("user", []string{"a", "b"})
	assert.True(t, validate.IsInjection(err))
}

func TestMaxLengthCountsRunes(t *testing.T) {
	rule := validate.Rule{Kind: validate.KindString, Required: true, MaxLength: 3}
	assert.NoError(t, rule.Check("name", "äöü"))
}

func TestMaxBytesCountsEncodedSize(t *testing.T) {
	rule := validate.Rule{Kind: validate.KindString, Required: true, MaxLength: 20, MaxBytes: 72}

	assert.NoError(t, rule.Check("password", strings.Repeat("😀", 18)))

	err := rule.Check("password", strings.Repeat("😀", 20))
	var ve *validate.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "maxbytes", ve.Rule)
	assert.Equal(t, "72", ve.Param)
	assert.Equal(t, `"password" must not be longer than 72 bytes`, ve.Message)
	assert.False(t, ve.Injection)
}

func TestOptionalFieldMayBeAbsent(t *testing.T) {
	rule := validate.Rule{Kind: validate.KindString, MaxLength: 5}
	assert.NoError(t, rule.Check("nick", nil))
	assert.NoError(t, rule.Check("nick", ""))
	assert.Error(t, rule.Check("nick", "toolong"))
}

func TestString(t *testing.T) {
	c := map[string]any{"a": "x", "b": 1}
	assert.Equal(t, "x", validate.String(c, "a"))
	assert.Equal(t, "", validate.String(c, "b"))
	assert.Equal(t, "", validate.String(c, "missing"))
}
