package oracle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/oracle"
)

func TestFeeder(t *testing.T) {
	f := oracle.NewFeeder()
	_, _, err := f.IndexPrice()
	assert.ErrorIs(t, err, oracle.ErrNoPrice)

	require.NoError(t, f.SetPrice(fpmath.FromInt64(7000), 100))
	price, ts, err := f.IndexPrice()
	require.NoError(t, err)
	assert.Equal(t, "7000", price.String())
	assert.Equal(t, int64(100), ts)

	assert.ErrorIs(t, f.SetPrice(fpmath.FromInt64(7100), 99), oracle.ErrStalePrice)
	assert.Error(t, f.SetPrice(fpmath.Zero, 200))
	require.NoError(t, f.SetPrice(fpmath.FromInt64(7100), 100))

	price, _, err = f.IndexPrice()
	require.NoError(t, err)
	assert.Equal(t, "7100", price.String())
}
