package shas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	c, err := NewCatalog([]CorpusItem{
		{Name: "Brachos", RemoteID: "36083", TotalPages: 125},
		{Name: "Shabbos", RemoteID: "36104", TotalPages: 312},
		{Name: "Makkos", RemoteID: "36093", TotalPages: 46},
	})
	require.NoError(t, err)
	return NewResolver(c)
}

func seq(from, to int) []int {
	out := []int{}
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestResolveAll(t *testing.T) {
	r := testResolver(t)
	for _, by := range []Addressing{ByLeaf, BySide} {
		res, err := r.Resolve(SelectionSpec{Masechta: "Makkos", Mode: ModeAll, Addressing: by})
		require.NoError(t, err)
		assert.Len(t, res.Pages, 46)
		assert.Equal(t, seq(1, 46), res.Pages)
		assert.Equal(t, "Makkos", res.Corpus.Name)
	}
}

func TestResolveRangeByLeaf(t *testing.T) {
	r := testResolver(t)
	res, err := r.Resolve(SelectionSpec{Masechta: "Brachos", Mode: ModeRange, Addressing: ByLeaf, RangeStart: "3", RangeEnd: "4"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6}, res.Pages)
}

func TestResolveRangeByLeafClampsToCorpus(t *testing.T) {
	r := testResolver(t)
	// Brachos has 125 pages, so daf 64 has only amud aleph and daf 65 does not exist.
	res, err := r.Resolve(SelectionSpec{Masechta: "Brachos", Mode: ModeRange, Addressing: ByLeaf, RangeStart: "63", RangeEnd: "70"})
	require.NoError(t, err)
	assert.Equal(t, []int{123, 124, 125}, res.Pages)
}

func TestResolveHugeRangeIsBoundedByCorpus(t *testing.T) {
	r := testResolver(t)
	tests := []struct {
		name       string
		by         Addressing
		start, end string
		want       []int
	}{
		{"dapim", ByLeaf, "2", "2000000000", seq(1, 46)},
		{"dapim below first", ByLeaf, "-2000000000", "3", seq(1, 4)},
		{"amudim", BySide, "2b", "2000000000a", seq(2, 46)},
		{"amudim below first", BySide, "-2000000000a", "2a", []int{1}},
		{"max int", BySide, "2a", "9223372036854775807b", seq(1, 46)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			begin := time.Now()
			res, err := r.Resolve(SelectionSpec{Masechta: "Makkos", Mode: ModeRange, Addressing: tt.by, RangeStart: tt.start, RangeEnd: tt.end})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Pages)
			assert.Less(t, time.Since(begin), 100*time.Millisecond)
		})
	}

	_, err := r.Resolve(SelectionSpec{Masechta: "Makkos", Mode: ModeRange, RangeStart: "2000000000", RangeEnd: "3"})
	assert.ErrorIs(t, err, ErrInvalidRange)
	res, err := r.Resolve(SelectionSpec{Masechta: "Makkos", Mode: ModeIndividual, Addressing: BySide, Items: []string{"9223372036854775807a", "2a"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Pages)
}

func TestResolveRangeBySide(t *testing.T) {
	r := testResolver(t)
	tests := []struct {
		name       string
		start, end string
		want       []int
	}{
		{"whole dapim", "3a", "4b", []int{3, 4, 5, 6}},
		{"start on amud beis", "3b", "4b", []int{4, 5, 6}},
		{"end on amud aleph", "3a", "4a", []int{3, 4, 5}},
		{"both trimmed", "3b", "5a", []int{4, 5, 6, 7}},
		{"single amud", "3b", "3b", []int{4}},
		{"single daf, both amudim", "3a", "3b", []int{3, 4}},
		{"single aleph", "7a", "7a", []int{11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(SelectionSpec{Masechta: "Brachos", Mode: ModeRange, Addressing: BySide, RangeStart: tt.start, RangeEnd: tt.end})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Pages)
		})
	}
}

func TestResolveIndividual(t *testing.T) {
	r := testResolver(t)

	res, err := r.Resolve(SelectionSpec{Masechta: "Shabbos", Mode: ModeIndividual, Addressing: BySide, Items: []string{"5a", "10b", "15a"}})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 18, 27}, res.Pages)

	res, err = r.Resolve(SelectionSpec{Masechta: "Shabbos", Mode: ModeIndividual, Addressing: ByLeaf, Items: []string{"10", "2", "10"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 17, 18}, res.Pages)
}

func TestResolveDropsOutOfRange(t *testing.T) {
	r := testResolver(t)
	res, err := r.Resolve(SelectionSpec{Masechta: "Makkos", Mode: ModeIndividual, Addressing: BySide, Items: []string{"1a", "99b"}})
	require.NoError(t, err)
	assert.Empty(t, res.Pages)

	res, err = r.Resolve(SelectionSpec{Masechta: "Makkos", Mode: ModeIndividual, Addressing: ByLeaf, Items: []string{"24", "25"}})
	require.NoError(t, err)
	assert.Equal(t, []int{45, 46}, res.Pages)
}

func TestResolveValidation(t *testing.T) {
	r := testResolver(t)
	tests := []struct {
		name string
		spec SelectionSpec
		want error
	}{
		{"unknown masechta", SelectionSpec{Masechta: "Foo"}, ErrUnknownCorpusItem},
		{"inverted daf range", SelectionSpec{Masechta: "Makkos", Mode: ModeRange, RangeStart: "5", RangeEnd: "3"}, ErrInvalidRange},
		{"inverted amud range", SelectionSpec{Masechta: "Makkos", Mode: ModeRange, Addressing: BySide, RangeStart: "3b", RangeEnd: "3a"}, ErrInvalidRange},
		{"missing range end", SelectionSpec{Masechta: "Makkos", Mode: ModeRange, RangeStart: "3"}, ErrInvalidRange},
		{"bad daf", SelectionSpec{Masechta: "Makkos", Mode: ModeRange, RangeStart: "x", RangeEnd: "3"}, ErrInvalidAddress},
		{"bad amud", SelectionSpec{Masechta: "Makkos", Mode: ModeIndividual, Addressing: BySide, Items: []string{"5z"}}, ErrInvalidAddress},
		{"empty individual", SelectionSpec{Masechta: "Makkos", Mode: ModeIndividual, Items: []string{" ", ""}}, ErrEmptySelection},
		{"unknown mode", SelectionSpec{Masechta: "Makkos", Mode: Mode(9)}, ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.spec)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDescriptor(t *testing.T) {
	assert.Equal(t, "All", SelectionSpec{Mode: ModeAll}.Descriptor())
	assert.Equal(t, "Range_3-4", SelectionSpec{Mode: ModeRange, RangeStart: "3", RangeEnd: "4"}.Descriptor())
	assert.Equal(t, "Range_2b-5a", SelectionSpec{Mode: ModeRange, RangeStart: "2b", RangeEnd: "5a"}.Descriptor())
	assert.Equal(t, "Individual_Selection", SelectionSpec{Mode: ModeIndividual}.Descriptor())
}

func TestParseModeAndAddressing(t *testing.T) {
	m, err := ParseMode("Range")
	require.NoError(t, err)
	assert.Equal(t, ModeRange, m)
	_, err = ParseMode("some")
	assert.ErrorIs(t, err, ErrInvalidMode)

	a, err := ParseAddressing("Amudim")
	require.NoError(t, err)
	assert.Equal(t, BySide, a)
	_, err = ParseAddressing("pages")
	assert.ErrorIs(t, err, ErrInvalidMode)

	assert.Equal(t, []string{"5a", "10b"}, SplitItems(" 5a, ,10b "))
}
