package ledger

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "1", want: "1000000000000000000"},
		{in: "0.5", want: "500000000000000000"},
		{in: " 2.25 ", want: "2250000000000000000"},
		{in: "0.000000000000000001", want: "1"},
		{in: "0", want: "0"},
		{in: "", wantErr: ErrInvalidAmount},
		{in: "abc", wantErr: ErrInvalidAmount},
		{in: "-1", wantErr: ErrInvalidAmount},
		{in: "0.0000000000000000001", wantErr: ErrInvalidAmount},
		{in: "1e60", wantErr: ErrOverflow},
		{in: "1.5e3", want: "1500000000000000000000"},
		{in: "1e59", want: "1" + strings.Repeat("0", 77)},
		{in: "1e100000", wantErr: ErrOverflow},
		{in: "1e300000000", wantErr: ErrOverflow},
		{in: "0e300000000", want: "0"},
		{in: "1e-300000000", wantErr: ErrInvalidAmount},
		{in: "-1e300000000", wantErr: ErrInvalidAmount},
		{in: strings.Repeat("1", 129), wantErr: ErrInvalidAmount},
	}
	for _, tt := range tests {
		name := tt.in
		if len(name) > 32 {
			name = name[:32]
		}
		t.Run(name, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("123")
	require.NoError(t, err)
	assert.Equal(t, "123", v.String())

	_, err = ParseWei("-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseWei("1.5")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseWei(new(big.Int).Add(MaxAmount, big.NewInt(1)).String())
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = ParseWei("1e18")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseWei(strings.Repeat("9", 200))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "1", FormatEther(MustParseEther("1")))
	assert.Equal(t, "0.3", FormatEther(MustParseEther("0.3")))
	assert.Equal(t, "0.000000000000000001", FormatEther(big.NewInt(1)))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := add(MaxAmount, big.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := add(big.NewInt(2), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "5", v.String())

	_, err = sub(big.NewInt(1), big.NewInt(2))
	assert.ErrorIs(t, err, ErrUnderflow)

	assert.Equal(t, "1", minAmount(big.NewInt(1), big.NewInt(2)).String())
}

func TestProgress(t *testing.T) {
	goal := MustParseEther("3")
	assert.EqualValues(t, 0, Progress(goal, big.NewInt(0)))
	assert.EqualValues(t, 33, Progress(goal, MustParseEther("1")))
	assert.EqualValues(t, 100, Progress(goal, goal))
}
