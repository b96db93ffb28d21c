package scale

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reading is one parsed weight sample.
type Reading struct {
	// Weight is the numeric value in the reported unit.
	Weight float64 `json:"weight"`

	// Unit is the reported unit, "kg" when the line carries none.
	Unit string `json:"unit"`

	// Raw is the line as received.
	Raw string `json:"raw"`
}

// weightPattern matches "1.234 kg", "0,5kg", "12 g" and bare numbers.
// Decimal commas are as common as points on European scales.
var weightPattern = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)\s*(kg|g|lb|oz)?`)

// ParseWeight extracts a reading from one scale line.
func ParseWeight(raw string) (Reading, error) {
	clean := strings.ToLower(strings.TrimSpace(raw))
	if clean == "" {
		return Reading{}, fmt.Errorf("scale: empty line")
	}

	match := weightPattern.FindStringSubmatch(clean)
	if match == nil || match[1] == "" {
		return Reading{}, fmt.Errorf("scale: no weight in %q", raw)
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("scale: parsing %q: %w", raw, err)
	}

	unit := match[2]
	if unit == "" {
		unit = "kg"
	}
	return Reading{Weight: value, Unit: unit, Raw: raw}, nil
}
