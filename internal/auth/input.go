package auth

import (
	"github.com/geocoder89/memberhub/internal/security"
	"github.com/geocoder89/memberhub/internal/validate"
)

const (
	maxNameLength     = 50
	maxPasswordLength = 20
	maxLookupLength   = 20
)

var SignUpSchema = validate.Schema{
	{Name: "name", Rule: validate.Rule{Kind: validate.KindString, Required: true, MaxLength: maxNameLength}},
	{Name: "email", Rule: validate.Rule{Kind: validate.KindEmail, Required: true}},
	{Name: "password", Rule: validate.Rule{Kind: validate.KindString, Required: true, MaxLength: maxPasswordLength, MaxBytes: security.MaxPasswordBytes}},
}

var LoginSchema = validate.Schema{
	{Name: "email", Rule: validate.Rule{Kind: validate.KindEmail, Required: true}},
	{Name: "password", Rule: validate.Rule{Kind: validate.KindString, Required: true, MaxLength: maxPasswordLength, MaxBytes: security.MaxPasswordBytes}},
}

// LookupRule guards the bare lookup-by-name value.
var LookupRule = validate.Rule{Kind: validate.KindString, Required: true, MaxLength: maxLookupLength}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

func ParseSignUp(raw map[string]any) (SignUpInput, error) {
	if err := SignUpSchema.Validate(raw); err != nil {
		return SignUpInput{}, err
	}

	return SignUpInput{
		Name:     validate.String(raw, "name"),
		Email:    validate.String(raw, "email"),
		Password: validate.String(raw, "password"),
	}, nil
}

func ParseLogin(raw map[string]any) (LoginInput, error) {
	if err := LoginSchema.Validate(raw); err != nil {
		return LoginInput{}, err
	}

	return LoginInput{
		Email:    validate.String(raw, "email"),
		Password: validate.String(raw, "password"),
	}, nil
}

func (in SignUpInput) Validate() error {
	return SignUpSchema.Validate(map[string]any{
		"name":     in.Name,
		"email":    in.Email,
		"password": in.Password,
	})
}

func (in LoginInput) Validate() error {
	return LoginSchema.Validate(map[string]any{
		"email":    in.Email,
		"password": in.Password,
	})
}
