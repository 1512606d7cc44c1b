package normalize

import "strings"

// Property type classifications derived from the two-character NYC
// building class prefix.
const (
	TypeSingleFamily = "single_family"
	TypeMultiFamily  = "multi_family"
	TypeCondo        = "condo"
	TypeCoop         = "coop"
	TypeMixedUse     = "mixed_use"
	TypeCommercial   = "commercial"
	TypeIndustrial   = "industrial"
	TypeVacantLand   = "vacant_land"
)

// classPrefixes maps building-class prefixes to property types. Only
// the first character of the class code is significant for most
// classes; a handful of two-character codes refine the mapping.
var classPrefixes = map[string]string{
	"A": TypeSingleFamily,
	"B": TypeMultiFamily,
	"C": TypeMultiFamily,
	"D": TypeMultiFamily,
	"R": TypeCondo,
	"C6": TypeCoop,
	"C8": TypeCoop,
	"D0": TypeCoop,
	"D4": TypeCoop,
	"S": TypeMixedUse,
	"K": TypeCommercial,
	"O": TypeCommercial,
	"E": TypeIndustrial,
	"F": TypeIndustrial,
	"G": TypeCommercial,
	"H": TypeCommercial,
	"I": TypeCommercial,
	"J": TypeCommercial,
	"L": TypeCommercial,
	"M": TypeCommercial,
	"N": TypeCommercial,
	"P": TypeCommercial,
	"Q": TypeCommercial,
	"T": TypeCommercial,
	"U": TypeIndustrial,
	"V": TypeVacantLand,
	"W": TypeCommercial,
	"Y": TypeCommercial,
	"Z": TypeCommercial,
}

// PropertyType classifies a building class code. Real codes are at
// most two characters; two-character matches win over single-character
// ones, and anything longer or unmapped defaults to single-family.
func PropertyType(bldgClass string) string {
	code := strings.ToUpper(strings.TrimSpace(bldgClass))
	if len(code) > 2 {
		return TypeSingleFamily
	}
	if len(code) == 2 {
		if t, ok := classPrefixes[code]; ok {
			return t
		}
	}
	if len(code) >= 1 {
		if t, ok := classPrefixes[code[:1]]; ok {
			return t
		}
	}
	return TypeSingleFamily
}
