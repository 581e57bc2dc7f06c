package inspector

import (
	"strconv"
	"strings"
)

// ParsedType is a native type declaration split into its bare type name
// and any length/precision/scale carried in a parenthesized suffix.
type ParsedType struct {
	Name      string
	MaxLength *int64
	Precision *int64
	Scale     *int64
}

// charFamily reports whether a type name denotes character or binary data,
// where a single parenthesized number means a length rather than a
// numeric precision.
func charFamily(name string) bool {
	upper := strings.ToUpper(name)
	for _, frag := range []string{"CHAR", "TEXT", "BINARY", "BLOB", "BIT"} {
		if strings.Contains(upper, frag) {
			return true
		}
	}
	return false
}

// ParseDeclaredType normalizes a native type string: the parenthesized
// length/precision suffix is stripped from the name and captured
// separately. "VARCHAR(255)" yields {Name: "VARCHAR", MaxLength: 255};
// "DECIMAL(10,2)" yields {Name: "DECIMAL", Precision: 10, Scale: 2}.
// Suffixes that are not plain numbers (enum value lists and the like) are
// stripped without capturing anything.
func ParseDeclaredType(raw string) ParsedType {
	raw = strings.TrimSpace(raw)

	open := strings.IndexByte(raw, '(')
	if open < 0 {
		return ParsedType{Name: raw}
	}

	pt := ParsedType{Name: strings.TrimSpace(raw[:open])}

	close := strings.LastIndexByte(raw, ')')
	if close <= open {
		return pt
	}

	parts := strings.Split(raw[open+1:close], ",")
	nums := make([]int64, 0, 2)
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return pt
		}
		nums = append(nums, n)
	}

	switch len(nums) {
	case 1:
		if charFamily(pt.Name) {
			pt.MaxLength = &nums[0]
		} else {
			pt.Precision = &nums[0]
		}
	case 2:
		pt.Precision = &nums[0]
		pt.Scale = &nums[1]
	}
	return pt
}
