package domain

import (
	"slices"
	"strings"
)

// MaterialClass identifies the piping material family of a line.
type MaterialClass string

// Supported material classes.
const (
	MaterialCarbonSteel  MaterialClass = "carbon_steel"
	MaterialStainless304 MaterialClass = "stainless_304"
	MaterialStainless316 MaterialClass = "stainless_316"
	MaterialGalvanized   MaterialClass = "galvanized"
	MaterialPVC          MaterialClass = "pvc"
)

// materialLabels maps each class to its shop-floor display label.
var materialLabels = map[MaterialClass]string{
	MaterialCarbonSteel:  "Aço Carbono",
	MaterialStainless304: "Inox 304",
	MaterialStainless316: "Inox 316",
	MaterialGalvanized:   "Galvanizado",
	MaterialPVC:          "PVC",
}

// MaterialClasses returns all supported classes in canonical order.
func MaterialClasses() []MaterialClass {
	return []MaterialClass{
		MaterialCarbonSteel,
		MaterialStainless304,
		MaterialStainless316,
		MaterialGalvanized,
		MaterialPVC,
	}
}

// Label returns the display label, falling back to the raw identifier.
func (m MaterialClass) Label() string {
	if label, ok := materialLabels[m]; ok {
		return label
	}
	return string(m)
}

// Valid reports whether m is a supported class.
func (m MaterialClass) Valid() bool {
	return slices.Contains(MaterialClasses(), m)
}

// ParseMaterialClass resolves an identifier or display label, ignoring case and accents.
func ParseMaterialClass(raw string) (MaterialClass, error) {
	folded := FoldName(raw)
	if folded == "" {
		return "", ErrInvalidMaterial
	}
	underscored := strings.ReplaceAll(strings.ReplaceAll(folded, " ", "_"), "-", "_")
	for _, class := range MaterialClasses() {
		if underscored == string(class) || folded == FoldName(class.Label()) {
			return class, nil
		}
	}
	return "", ErrInvalidMaterial
}
