package standardize

import "strings"

// Dimension groups units that convert among each other.
type Dimension string

const (
	DimEmissions  Dimension = "emissions"
	DimEnergy     Dimension = "energy"
	DimWater      Dimension = "water"
	DimMonetary   Dimension = "monetary"
	DimPercentage Dimension = "percentage"
	DimCount      Dimension = "count"
	DimUnknown    Dimension = "unknown"
)

// CanonicalUnit names the base unit each dimension normalizes to.
var CanonicalUnit = map[Dimension]string{
	DimEmissions:  "tCO2e",
	DimEnergy:     "MWh",
	DimWater:      "m³",
	DimMonetary:   "USD",
	DimPercentage: "%",
	DimCount:      "count",
}

// unitEntry is one recognized spelling and its multiplier into the
// dimension's canonical base unit.
type unitEntry struct {
	dimension Dimension
	factor    float64
	synonym   bool
}

// unitTable maps every recognized raw-unit spelling (lowercased) to its
// conversion factor. "Recognized exactly" vs "recognized via synonym"
// drives the extraction confidence tiers.
var unitTable = map[string]unitEntry{
	// Emissions -> tCO2e
	"tco2e":        {DimEmissions, 1, false},
	"tco2":         {DimEmissions, 1, true},
	"tons co2":     {DimEmissions, 1, true},
	"tons co2e":    {DimEmissions, 1, true},
	"t co2e":       {DimEmissions, 1, true},
	"ktco2e":       {DimEmissions, 1e3, false},
	"kt co2e":      {DimEmissions, 1e3, true},
	"mtco2e":       {DimEmissions, 1e6, false},
	"mt co2e":      {DimEmissions, 1e6, true},
	"kg co2e":      {DimEmissions, 1e-3, false},
	"kgco2e":       {DimEmissions, 1e-3, false},
	"kg co2":       {DimEmissions, 1e-3, true},

	// Energy -> MWh
	"mwh": {DimEnergy, 1, false},
	"gwh": {DimEnergy, 1e3, false},
	"twh": {DimEnergy, 1e6, false},
	"kwh": {DimEnergy, 1e-3, false},
	"gj":  {DimEnergy, 0.2778, false},
	"tj":  {DimEnergy, 277.78, false},

	// Water -> m³
	"m3":             {DimWater, 1, false},
	"m³":             {DimWater, 1, false},
	"cubic meters":   {DimWater, 1, true},
	"cubic meter":    {DimWater, 1, true},
	"million m3":     {DimWater, 1e6, false},
	"million m³":     {DimWater, 1e6, false},
	"liters":         {DimWater, 1e-3, false},
	"litres":         {DimWater, 1e-3, true},
	"gallons":        {DimWater, 3.785e-3, false},
	"gallons (us)":   {DimWater, 3.785e-3, false},

	// Percentage
	"%":       {DimPercentage, 1, false},
	"percent": {DimPercentage, 1, true},

	// Monetary: pass-through, currency annotated separately.
	"usd": {DimMonetary, 1, false},
	"$":   {DimMonetary, 1, true},
}

// currencyCodes recognizes ISO-ish currency annotations for the monetary
// pass-through path.
var currencyCodes = map[string]bool{
	"usd": true, "eur": true, "gbp": true, "jpy": true, "cny": true,
	"cad": true, "aud": true, "chf": true,
}

// lookupUnit normalizes and looks up a raw unit token.
func lookupUnit(raw string) (unitEntry, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Trim(key, ".,;:()")
	entry, ok := unitTable[key]
	return entry, ok
}

// isCurrencyCode reports whether token is a recognized ISO currency code.
func isCurrencyCode(raw string) bool {
	return currencyCodes[strings.ToLower(strings.TrimSpace(raw))]
}
