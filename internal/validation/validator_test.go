package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/model"
)

func validTour() model.Tour {
	return model.Tour{
		Name:           "The Forest Hiker",
		Duration:       5,
		MaxGroupSize:   25,
		Difficulty:     "easy",
		RatingsAverage: 4.5,
		Price:          397,
		Summary:        "Breathtaking hike through the Canadian Banff National Park",
		Description:    "Long description",
		ImageCover:     "tour-1-cover.jpg",
	}
}

func TestValidTourPasses(t *testing.T) {
	tour := validTour()
	assert.NoError(t, Struct(&tour))
}

func TestTourNameLength(t *testing.T) {
	tour := validTour()
	tour.Name = "Short"
	err := Struct(&tour)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Validation, ae.Kind)
	assert.Equal(t, 400, ae.Status)
	assert.Contains(t, ae.Message, "Invalid input data.")
	assert.Contains(t, ae.Message, "name must have at least 10 characters")
}

func TestTourDiscountBelowPrice(t *testing.T) {
	tour := validTour()
	d := 500.0
	tour.PriceDiscount = &d
	err := Struct(&tour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Discount price (500) should be below regular price")

	d = 100
	assert.NoError(t, Struct(&tour))
}

func TestTourDifficultyEnum(t *testing.T) {
	tour := validTour()
	tour.Difficulty = "extreme"
	err := Struct(&tour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "difficulty must be one of: easy medium difficult")
}

func TestReviewRatingRange(t *testing.T) {
	r := model.Review{Review: "Great", Rating: 6}
	err := Struct(&r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rating must be at most 5")
}

type confirmInput struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func TestPasswordConfirmMustMatch(t *testing.T) {
	err := Validator{}.Validate(&confirmInput{Password: "pass1234", PasswordConfirm: "pass4321"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passwordConfirm must match password")

	assert.NoError(t, Validator{}.Validate(&confirmInput{Password: "pass1234", PasswordConfirm: "pass1234"}))
}

func TestUserRoleEnum(t *testing.T) {
	u := model.User{Name: "Ann", Email: "ann@example.com", Role: "owner"}
	err := Struct(&u)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role must be one of")
}
