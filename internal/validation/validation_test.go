package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pconnect/portal/internal/models"
)

func TestMobile(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0821234567", true},
		{"082123456", false},
		{"08212345678", false},
		{"082-123-456", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mobile(tt.in))
		})
	}
}

func TestStruct_VisitorInput(t *testing.T) {
	err := Struct(models.VisitorInput{
		FirstName: "Ada",
		Phone:     "12345",
		Email:     "not-an-email",
	})
	require.Error(t, err)

	fields, ok := err.(FieldErrors)
	require.True(t, ok)
	assert.Equal(t, "Mobile number must be exactly 10 digits", fields["phone"])
	assert.Equal(t, "Please enter a valid email address", fields["email"])
	assert.Equal(t, "Last name is required", fields["last_name"])
	assert.Equal(t, "Host name is required", fields["host_name"])

	field, msg := fields.First()
	assert.Equal(t, "email", field)
	assert.Equal(t, msg, err.Error())
}

func TestStruct_Valid(t *testing.T) {
	err := Struct(models.VisitorInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Phone:     "0821234567",
		HostName:  "Grace",
	})
	assert.NoError(t, err)
}

func TestStruct_BookingDateFormat(t *testing.T) {
	err := Struct(models.BookingInput{
		BuildingID:  "b1",
		SpaceID:     "s1",
		SpaceType:   models.SpaceDesk,
		BookingDate: "16/10/2026",
	})
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors)["booking_date"], "2006-01-02")
}
