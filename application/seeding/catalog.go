// Package seeding loads the reference instrument catalog into the store.
package seeding

import (
	_ "embed"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Instruments []catalogEntry `yaml:"instruments"`
}

type catalogEntry struct {
	Symbol               string             `yaml:"symbol"`
	Name                 string             `yaml:"name"`
	InstrumentType       string             `yaml:"instrument_type"`
	CurrentPrice         string             `yaml:"current_price"`
	AllocationRegions    map[string]float64 `yaml:"allocation_regions"`
	AllocationSectors    map[string]float64 `yaml:"allocation_sectors"`
	AllocationAssetClass map[string]float64 `yaml:"allocation_asset_class"`
}

// Entry is one catalog instrument. Price is kept apart from the instrument
// because it is recorded through the price history.
type Entry struct {
	Instrument entities.Instrument
	Price      decimal.Decimal
	// Err is set when the entry could not be parsed; the seeder reports it
	// for this symbol only.
	Err error
}

// DefaultCatalog returns the embedded 22-ETF catalog
func DefaultCatalog() ([]Entry, error) {
	return parseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog in the embedded YAML format
func LoadCatalog(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]Entry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	entries := make([]Entry, 0, len(file.Instruments))
	for _, raw := range file.Instruments {
		entry := Entry{
			Instrument: entities.Instrument{
				Symbol:               valueobjects.NormalizeSymbol(raw.Symbol),
				Name:                 raw.Name,
				Type:                 entities.InstrumentType(raw.InstrumentType),
				AllocationRegions:    toAllocation(raw.AllocationRegions),
				AllocationSectors:    toAllocation(raw.AllocationSectors),
				AllocationAssetClass: toAllocation(raw.AllocationAssetClass),
			},
		}
		price, err := decimal.NewFromString(raw.CurrentPrice)
		if err != nil {
			entry.Err = fmt.Errorf("invalid current_price %q: %w", raw.CurrentPrice, err)
		}
		entry.Price = price
		entry.Instrument.CurrentPrice = price
		entries = append(entries, entry)
	}
	return entries, nil
}

func toAllocation(m map[string]float64) valueobjects.Allocation {
	if m == nil {
		return nil
	}
	out := make(valueobjects.Allocation, len(m))
	for k, v := range m {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}
