package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email string  `json:"email" validate:"required,email"`
	Name  string  `json:"name" validate:"notblank"`
	Bio   *string `json:"bio" validate:"omitnil,notblank"`
}

func TestStruct_Valid(t *testing.T) {
	require.NoError(t, Struct(signup{Email: "a@x.io", Name: "Alice"}))
}

func TestFields_UsesJSONNames(t *testing.T) {
	blank := "   "
	err := Struct(signup{Email: "nope", Name: " ", Bio: &blank})
	require.Error(t, err)

	fields := Fields(err)
	require.Len(t, fields, 3)

	byField := map[string]FieldError{}
	for _, f := range fields {
		byField[f.Field] = f
	}
	assert.Equal(t, "email", byField["email"].Tag)
	assert.Equal(t, "email must be a valid email address", byField["email"].Message)
	assert.Equal(t, "this field cannot be blank", byField["name"].Message)
	assert.Equal(t, "notblank", byField["bio"].Tag)
	assert.NotEmpty(t, Message(fields))
}

func TestFields_OtherError(t *testing.T) {
	assert.Nil(t, Fields(errors.New("x")))
}
