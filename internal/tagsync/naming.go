package tagsync

import (
	"fmt"
	"regexp"
	"strings"
)

// Namespace prefixes used when generating tag names. A reference carrying one of
// these is a display name, never an external ID.
const (
	PrefixPortfolio   = "PF-"
	PrefixBlock       = "BL-"
	PrefixMaintenance = "MT-"
	PrefixTenant      = "TN-"
	PrefixSystem      = "SYS-"
	PrefixCustom      = "CUSTOM-"
	PrefixOwner       = "Owner-"
)

const (
	maxPortfolioPart = 40
	maxTagLength     = 100
)

var (
	opaqueIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{10,32}$`)
	disallowedChars = regexp.MustCompile(`[^A-Z0-9-]+`)
	hyphenRuns      = regexp.MustCompile(`-{2,}`)

	knownPrefixes = []string{
		PrefixPortfolio,
		PrefixBlock,
		PrefixMaintenance,
		PrefixTenant,
		PrefixSystem,
		PrefixCustom,
		PrefixOwner,
	}
)

// HasNamespacePrefix reports whether ref starts with a recognised namespace prefix.
func HasNamespacePrefix(ref string) bool {
	for _, prefix := range knownPrefixes {
		if strings.HasPrefix(strings.ToUpper(ref), strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

// IsOpaqueID reports whether ref can be sent to the tagging API as an ID as-is.
func IsOpaqueID(ref string) bool {
	return opaqueIDPattern.MatchString(ref) && !HasNamespacePrefix(ref)
}

// NeedsResolution reports whether a stored tag reference is set but is a name.
func NeedsResolution(ref string) bool {
	return ref != "" && !IsOpaqueID(ref)
}

// PortfolioTagName builds the tag name for a portfolio from its display name.
// Names that normalise to nothing fall back to the portfolio ID.
func PortfolioTagName(portfolioID int64, name string) string {
	part := normalize(name)
	if len(part) > maxPortfolioPart {
		part = strings.Trim(part[:maxPortfolioPart], "-")
	}
	if part == "" {
		part = fmt.Sprintf("%d", portfolioID)
	}
	tag := PrefixPortfolio + part
	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}
	return tag
}

// BlockTagName builds the tag name for a block. It depends only on the block ID
// so renaming a block never changes its tag.
func BlockTagName(blockID int64) string {
	return fmt.Sprintf("%s%d", PrefixBlock, blockID)
}

func normalize(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = disallowedChars.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
