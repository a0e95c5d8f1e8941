package envutil_test

import (
	"strconv"
	"testing"

	"github.com/amp-labs/amp-resilience/envutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderString(t *testing.T) {
	t.Parallel()

	ctx := envutil.WithEnvOverrides(t.Context(), map[string]string{
		"TEST_READER_SET": "value",
		"TEST_READER_BAD": "x",
	})

	assert.Equal(t, "TEST_READER_SET=value", envutil.String(ctx, "TEST_READER_SET").String())
	assert.Equal(t, "TEST_READER_UNSET=<not set>", envutil.String(ctx, "TEST_READER_UNSET").String())
	assert.Contains(t, envutil.Int[int](ctx, "TEST_READER_BAD").String(), "TEST_READER_BAD=<error:")
}

func TestReaderHasValue(t *testing.T) {
	t.Parallel()

	ctx := envutil.WithEnvOverride(t.Context(), "TEST_HAS_VALUE", "1")

	assert.True(t, envutil.Int[int](ctx, "TEST_HAS_VALUE").HasValue())
	assert.False(t, envutil.Int[int](ctx, "TEST_HAS_VALUE_MISSING").HasValue())
	assert.False(t, envutil.Int[int](ctx, "TEST_HAS_VALUE_MISSING").HasError())
	assert.Equal(t, "TEST_HAS_VALUE", envutil.Int[int](ctx, "TEST_HAS_VALUE").Key())
}

func TestReaderWithDefaultKeepsError(t *testing.T) {
	t.Parallel()

	ctx := envutil.WithEnvOverride(t.Context(), "TEST_DEFAULT_BAD", "nope")

	rdr := envutil.Int[int](ctx, "TEST_DEFAULT_BAD").WithDefault(5)
	require.Error(t, rdr.Error())
	assert.Equal(t, 8, rdr.ValueOrElse(8))
}

func TestMapFunction(t *testing.T) {
	t.Parallel()

	ctx := envutil.WithEnvOverride(t.Context(), "TEST_MAP", "21")

	doubled := envutil.Map(envutil.String(ctx, "TEST_MAP"), func(s string) (int, error) {
		n, err := strconv.Atoi(s)

		return n * 2, err
	})

	val, err := doubled.Value()
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	called := false
	missing := envutil.Map(envutil.String(ctx, "TEST_MAP_MISSING"), func(s string) (int, error) {
		called = true

		return 0, nil
	})

	assert.False(t, called, "map function must not run on a missing value")
	assert.False(t, missing.HasValue())
}
