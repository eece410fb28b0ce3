package tagsync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOpaqueID(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{ref: "abc123tagid01", want: true},
		{ref: "Z9y8X7w6V5", want: true},
		{ref: strings.Repeat("a", 32), want: true},
		{ref: strings.Repeat("a", 33), want: false},
		{ref: "short1", want: false},
		{ref: "PF-BATH-LETTINGS", want: false},
		{ref: "BL-12", want: false},
		{ref: "Owner-55", want: false},
		{ref: "abc_123_tag_id", want: false},
		{ref: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOpaqueID(tt.ref))
		})
	}
}

func TestHasNamespacePrefix(t *testing.T) {
	for _, ref := range []string{"PF-X", "BL-1", "MT-2", "TN-3", "SYS-4", "CUSTOM-5", "Owner-6", "pf-lower"} {
		assert.True(t, HasNamespacePrefix(ref), ref)
	}
	assert.False(t, HasNamespacePrefix("abc123tagid01"))
	assert.False(t, HasNamespacePrefix("PFX"))
}

func TestNeedsResolution(t *testing.T) {
	assert.False(t, NeedsResolution(""))
	assert.False(t, NeedsResolution("abc123tagid01"))
	assert.True(t, NeedsResolution("PF-P1"))
	assert.True(t, NeedsResolution("Bath Lettings"))
}

func TestPortfolioTagName(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		in   string
		want string
	}{
		{name: "simple", id: 1, in: "P1", want: "PF-P1"},
		{name: "spaces and case", id: 1, in: "Bath Lettings", want: "PF-BATH-LETTINGS"},
		{name: "punctuation collapses", id: 1, in: "  Smith & Sons -- Ltd. ", want: "PF-SMITH-SONS-LTD"},
		{name: "empty falls back to id", id: 42, in: "!!!", want: "PF-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PortfolioTagName(tt.id, tt.in))
		})
	}
}

func TestPortfolioTagName_TruncatesLongNames(t *testing.T) {
	got := PortfolioTagName(1, strings.Repeat("A", 30)+" "+strings.Repeat("B", 30))

	assert.True(t, strings.HasPrefix(got, PrefixPortfolio))
	assert.LessOrEqual(t, len(got), len(PrefixPortfolio)+maxPortfolioPart)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestBlockTagName_DependsOnlyOnID(t *testing.T) {
	assert.Equal(t, "BL-17", BlockTagName(17))
	assert.True(t, NeedsResolution(BlockTagName(17)))
}
