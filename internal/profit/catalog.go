package profit

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CropEconomics holds market price (KES per tonne) and default per-acre
// input costs (KES) for one crop.
type CropEconomics struct {
	MarketPrice    float64 `yaml:"market_price"`
	SeedCost       float64 `yaml:"seed_cost_per_acre"`
	FertilizerCost float64 `yaml:"fertilizer_cost_per_acre"`
	LaborCost      float64 `yaml:"labor_cost_per_acre"`
}

type Catalog struct {
	Crops map[string]CropEconomics `yaml:"crops"`
}

func DefaultCatalog() *Catalog {
	return &Catalog{Crops: map[string]CropEconomics{
		"maize": {
			MarketPrice:    40000,
			SeedCost:       2500,
			FertilizerCost: 6000,
			LaborCost:      8000,
		},
		"beans": {
			MarketPrice:    100000,
			SeedCost:       4000,
			FertilizerCost: 3000,
			LaborCost:      7000,
		},
		"potato": {
			MarketPrice:    30000,
			SeedCost:       20000,
			FertilizerCost: 10000,
			LaborCost:      12000,
		},
	}}
}

// LoadCatalog returns the built-in catalog with entries from the YAML file at
// path merged on top. An empty path yields the defaults unchanged.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crop catalog: %w", err)
	}
	var fromFile Catalog
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse crop catalog yaml: %w", err)
	}
	for name, econ := range fromFile.Crops {
		if econ.MarketPrice < 0 || econ.SeedCost < 0 || econ.FertilizerCost < 0 || econ.LaborCost < 0 {
			return nil, fmt.Errorf("crop catalog entry %q: values must be >= 0", name)
		}
		catalog.Crops[NormalizeCrop(name)] = econ
	}
	return catalog, nil
}

func SaveCatalog(path string, catalog *Catalog) error {
	data, err := yaml.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("marshal crop catalog: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Catalog) Lookup(crop string) (CropEconomics, bool) {
	if c == nil {
		return CropEconomics{}, false
	}
	econ, ok := c.Crops[NormalizeCrop(crop)]
	return econ, ok
}

// MarketPrice returns 0 for crops the catalog does not know.
func (c *Catalog) MarketPrice(crop string) float64 {
	econ, _ := c.Lookup(crop)
	return econ.MarketPrice
}

func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Crops))
	for name := range c.Crops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NormalizeCrop(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
