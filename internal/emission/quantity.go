package emission

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit conversion factors to kilograms. Liquids use 1 L = 1 kg.
const (
	GramsToKg       = 0.001
	MilligramsToKg  = 0.000001
	KgToKg          = 1.0
	MillilitersToKg = 0.001
	CentilitersToKg = 0.01
	DecilitersToKg  = 0.1
	LitersToKg      = 1.0
	PoundsToKg      = 0.453592
	OuncesToKg      = 0.0283495
	FluidOuncesToKg = 0.0295735
)

var unitFactors = map[string]float64{
	"mg":     MilligramsToKg,
	"g":      GramsToKg,
	"gr":     GramsToKg,
	"kg":     KgToKg,
	"ml":     MillilitersToKg,
	"cl":     CentilitersToKg,
	"dl":     DecilitersToKg,
	"l":      LitersToKg,
	"lt":     LitersToKg,
	"ltr":    LitersToKg,
	"lb":     PoundsToKg,
	"lbs":    PoundsToKg,
	"pound":  PoundsToKg,
	"pounds": PoundsToKg,
	"oz":     OuncesToKg,
	"fl oz":  FluidOuncesToKg,
}

var quantityPattern = regexp.MustCompile(`(?i)(?:(\d+)\s*[x×]\s*)?(\d+(?:[.,]\d+)?)\s*(fl\.?\s?oz|pounds?|lbs?|ltr|lt|kg|mg|ml|cl|dl|gr|g|l|oz)\b`)

// ParseQuantity converts a free-text package quantity ("330 ml", "1,5 L", "6 x 125 g")
// into kilograms. It returns false when no positive quantity with a known unit is found.
func ParseQuantity(text string) (float64, bool) {
	match := quantityPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(strings.Replace(match[2], ",", ".", 1), 64)
	if err != nil || value <= 0 {
		return 0, false
	}

	multiplier := 1.0
	if match[1] != "" {
		if n, err := strconv.Atoi(match[1]); err == nil && n > 0 {
			multiplier = float64(n)
		}
	}

	unit := strings.ToLower(match[3])
	if strings.HasPrefix(unit, "fl") {
		unit = "fl oz"
	}

	factor, ok := unitFactors[unit]
	if !ok {
		return 0, false
	}
	return value * multiplier * factor, true
}
