package textmatch

import "strings"

// materialAliases maps free-hand material names onto the canonical inventory name.
var materialAliases = map[string]string{
	"harmonic scalpel":                         "Harmonic Scalpel Unit",
	"harmonic scalpel unit":                    "Harmonic Scalpel Unit",
	"titanium mesh":                            "Titanium Mesh",
	"c-arm":                                    "Mobile C-Arm (X-Ray)",
	"c arm":                                    "Mobile C-Arm (X-Ray)",
	"x-ray":                                    "Mobile C-Arm (X-Ray)",
	"mobile c-arm":                             "Mobile C-Arm (X-Ray)",
	"zimmer biomet persona knee system":        "Knee Prosthesis Set",
	"zimmer biomet persona knee system size 4": "Knee Prosthesis Set",
	"persona knee system":                      "Knee Prosthesis Set",
	"knee prosthesis":                          "Knee Prosthesis Set",
}

// CanonicalMaterial returns the canonical inventory name for a material, or the
// trimmed input when no alias is known.
func CanonicalMaterial(name string) string {
	trimmed := strings.Join(strings.Fields(name), " ")
	key := strings.ToLower(strings.NewReplacer("(", " ", ")", " ", ",", " ").Replace(trimmed))
	key = strings.Join(strings.Fields(key), " ")
	if canonical, ok := materialAliases[key]; ok {
		return canonical
	}
	return trimmed
}

// SameMaterial reports whether two material names refer to the same item, comparing
// canonical names first and falling back to the tolerant matcher.
func SameMaterial(a, b string) bool {
	ca, cb := CanonicalMaterial(a), CanonicalMaterial(b)
	if strings.EqualFold(ca, cb) {
		return true
	}
	return Match(ca, cb)
}
