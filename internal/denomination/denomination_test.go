package denomination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/apperr"
)

func TestTotal(t *testing.T) {
	counts := Counts{50: 2, 100: 1, 200: 0, 500: 3}
	assert.Equal(t, int64(1700), counts.Total())
	assert.Zero(t, Counts{}.Total())
}

func TestValidate(t *testing.T) {
	allowed := []int64{10, 20, 50, 100, 200, 500}

	require.NoError(t, Counts{50: 2, 500: 1}.Validate(allowed))

	err := Counts{50: -1, 25: 2}.Validate(allowed)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "count for 50")
	assert.Contains(t, err.Error(), "denomination 25")

	require.NoError(t, Counts{25: 2}.Validate(nil))
}

func TestVarianceAndOrder(t *testing.T) {
	counts := Counts{500: 3, 50: 2}
	assert.Equal(t, int64(-300), counts.Variance(1900))
	assert.Equal(t, []int64{50, 500}, counts.Denominations())
}
