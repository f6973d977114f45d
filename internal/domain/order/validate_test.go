package order

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func validShipping() Shipping {
	return Shipping{
		Name:    "Ann Lee",
		Email:   "ann@example.com",
		Phone:   "+1 555 0100",
		Address: "1 Main St",
	}
}

func TestValidator_Check(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Check(validShipping()))

	noEmail := validShipping()
	noEmail.Email = ""
	require.NoError(t, v.Check(noEmail))

	tests := []struct {
		name  string
		edit  func(s *Shipping)
		field string
	}{
		{"missing name", func(s *Shipping) { s.Name = "" }, "name"},
		{"missing phone", func(s *Shipping) { s.Phone = "" }, "phone"},
		{"missing address", func(s *Shipping) { s.Address = "" }, "address"},
		{"bad email", func(s *Shipping) { s.Email = "nope" }, "email"},
		{"long notes", func(s *Shipping) { s.Notes = strings.Repeat("x", 2001) }, "notes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validShipping()
			tt.edit(&s)

			var ve *apperr.ValidationError
			require.ErrorAs(t, v.Check(s), &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestShipping_Normalize(t *testing.T) {
	s := Shipping{Name: "  Ann ", Phone: "\t123\n", Address: " x "}.Normalize()
	assert.Equal(t, Shipping{Name: "Ann", Phone: "123", Address: "x"}, s)
}
