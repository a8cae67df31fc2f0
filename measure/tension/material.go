package tension

import (
	"fmt"
	"strings"
)

// Material is a spoke material preset.
type Material string

const (
	Steel     Material = "steel"
	Aluminium Material = "aluminium"
	// Other means the linear density is entered directly.
	Other Material = "other"
)

var densities = map[Material]float64{
	Steel:     7800,
	Aluminium: 2699,
}

// Materials lists the presets with a known density, in display order.
func Materials() []Material {
	return []Material{Steel, Aluminium}
}

// Density returns the material density in kg/m^3, or 0 for [Other].
func (m Material) Density() float64 {
	return densities[m]
}

// ParseMaterial resolves a material name. "aluminum" is accepted as an
// alias of [Aluminium].
func ParseMaterial(s string) (Material, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "steel":
		return Steel, nil
	case "aluminium", "aluminum":
		return Aluminium, nil
	case "other":
		return Other, nil
	default:
		return "", fmt.Errorf("unknown spoke material: %q", s)
	}
}
