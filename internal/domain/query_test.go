package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, DefaultPageSize},
		{-3, -1, 1, DefaultPageSize},
		{2, 5000, 2, MaxPageSize},
		{7, 50, 7, 50},
		{math.MaxInt64, MaxPageSize, MaxPage, MaxPageSize},
	}
	for _, tc := range cases {
		page, size := ClampPage(tc.page, tc.size)
		assert.Equal(t, tc.wantPage, page, "page %d size %d", tc.page, tc.size)
		assert.Equal(t, tc.wantSize, size, "page %d size %d", tc.page, tc.size)

		offset := uint64(page-1) * uint64(size)
		assert.LessOrEqual(t, offset, uint64(math.MaxInt64))
	}
}

func TestParseSortDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SortNameAsc, ParseSort(""))
	assert.Equal(t, SortNameAsc, ParseSort("size_desc"))
	assert.Equal(t, SortCreatedDesc, ParseSort("time_created_desc"))
}
