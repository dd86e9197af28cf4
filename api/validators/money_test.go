package validators

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

func TestParseMoneyCents(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"125", 12500},
		{"125.5", 12550},
		{" 1500.05 ", 150005},
	}
	for _, tc := range cases {
		got, err := ParseMoneyCents(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseMoneyCentsRejects(t *testing.T) {
	for _, raw := range []string{"abc", "-1", "10.001"} {
		_, err := ParseMoneyCents(raw)
		require.Error(t, err, raw)
		require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), raw)
	}
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "0.00", FormatCents(0))
	require.Equal(t, "361.50", FormatCents(36150))
	require.Equal(t, "12.05", FormatCents(1205))
}
