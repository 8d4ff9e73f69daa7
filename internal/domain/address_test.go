package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr error
	}{
		{
			name:  "system facility",
			input: "11111111111111111111111111111111",
			want:  Address{},
		},
		{
			name:    "too short",
			input:   "1111",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "not base58",
			input:   "0OIl",
			wantErr: ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressTextRoundTrip(t *testing.T) {
	a := LabelAddress("flashloan")

	raw, err := json.Marshal(map[string]Address{"key": a})
	require.NoError(t, err)

	var decoded map[string]Address
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, a, decoded["key"])
	assert.Equal(t, a.String(), MustParseAddress(a.String()).String())
}

func TestWellKnownFacilities(t *testing.T) {
	f := DefaultFacilities()

	assert.True(t, f.System.IsZero())
	assert.True(t, f.IsTokenFacility(TokenFacility))
	assert.True(t, f.IsTokenFacility(ExtendedTokenFacility))
	assert.False(t, f.IsTokenFacility(f.FlashLoan))
	assert.NotEqual(t, f.FlashLoan, f.Vault)
}
