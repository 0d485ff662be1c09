package shas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAddressBoundaries(t *testing.T) {
	tests := []struct {
		page int
		want Address
	}{
		{1, Address{2, Front}},
		{2, Address{2, Back}},
		{3, Address{3, Front}},
		{4, Address{3, Back}},
		{125, Address{64, Front}},
		{126, Address{64, Back}},
		{46, Address{24, Back}},
	}
	for _, tt := range tests {
		got, err := ToAddress(tt.page)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "page %d", tt.page)
	}
}

func TestToAddressRejectsNonPositive(t *testing.T) {
	for _, p := range []int{0, -1, -100} {
		_, err := ToAddress(p)
		assert.ErrorIs(t, err, ErrInvalidPage)
		assert.True(t, IsValidation(err))
	}
}

func TestRoundTrip(t *testing.T) {
	for leaf := FirstLeaf; leaf < 400; leaf++ {
		for _, side := range []Side{Front, Back} {
			a, err := ToAddress(ToPage(leaf, side))
			require.NoError(t, err)
			assert.Equal(t, Address{leaf, side}, a)
		}
	}
	for page := 1; page <= 350; page++ {
		a, err := ToAddress(page)
		require.NoError(t, err)
		assert.Equal(t, page, a.Page())
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"5a", Address{5, Front}, false},
		{" 10B ", Address{10, Back}, false},
		{"2a", Address{2, Front}, false},
		{"a", Address{}, true},
		{"5c", Address{}, true},
		{"xa", Address{}, true},
		{"", Address{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Leaf, got.Leaf)
		})
	}
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "24b", Address{24, Back}.String())
	assert.Equal(t, "Makkos_Daf24_Amudb.pdf", AmudFileName("Makkos", Address{24, Back}))
	assert.Equal(t, "Makkos_Daf24.pdf", DafFileName("Makkos", 24))
	assert.Equal(t, "Makkos_All_Full.pdf", FullFileName("Makkos", "All"))
}
