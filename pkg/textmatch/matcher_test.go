package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"mobile", "c-arm"}, Tokens("Mobile C-Arm (X-Ray)"))
	assert.Equal(t, []string{"harmonic", "scalpel"}, Tokens("Harmonic Scalpel Unit"))
	assert.Equal(t, []string{"knee", "prosthetic", "set"}, Tokens("Knee Prosthesis Set"))
	assert.Empty(t, Tokens("  the unit  "))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "Laminar Airflow", "laminar airflow", true},
		{"alias x-ray and c-arm", "X-Ray", "C-Arm", true},
		{"stop words ignored", "Harmonic Scalpel", "Harmonic Scalpel Unit", true},
		{"half of shorter", "HEPA Filter", "HEPA ceiling diffuser with filter", true},
		{"two hits in long strings", "robotic arm console tower", "console with arm docking bay", true},
		{"unrelated", "Titanium Mesh", "Bone Cement", false},
		{"empty side", "", "Bone Cement", false},
		{"only stop words", "unit", "unit", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.a, tt.b))
		})
	}
}

func TestMatchAny(t *testing.T) {
	assert.True(t, MatchAny("ceiling mounted display", []string{"Laminar Airflow", "Ceiling Mount Display"}))
	assert.False(t, MatchAny("Laser", nil))
}

func TestContainsToken(t *testing.T) {
	assert.True(t, ContainsToken("Total Knee Replacement", "knee"))
	assert.False(t, ContainsToken("Craniotomy", "knee"))
}

func TestCanonicalMaterial(t *testing.T) {
	assert.Equal(t, "Harmonic Scalpel Unit", CanonicalMaterial("  harmonic   scalpel "))
	assert.Equal(t, "Mobile C-Arm (X-Ray)", CanonicalMaterial("C-Arm"))
	assert.Equal(t, "Knee Prosthesis Set", CanonicalMaterial("Zimmer Biomet Persona Knee System (Size 4)"))
	assert.Equal(t, "Bone Cement", CanonicalMaterial("Bone Cement"))
}

func TestSameMaterial(t *testing.T) {
	assert.True(t, SameMaterial("c arm", "Mobile C-Arm (X-Ray)"))
	assert.True(t, SameMaterial("Harmonic Scalpel", "Harmonic Scalpel Unit"))
	assert.False(t, SameMaterial("Titanium Mesh", "Bone Cement"))
}
