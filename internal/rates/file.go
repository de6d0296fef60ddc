package rates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Rates map[string]float64 `yaml:"rates" toml:"rates"`
}

// LoadTable reads a fallback table quoted per 1 MDL from a .yaml/.yml or
// .toml file.
func LoadTable(path string) (StaticTable, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return StaticTable{}, err
	}
	var parsed tableFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &parsed)
	case ".toml":
		err = toml.Unmarshal(content, &parsed)
	default:
		return StaticTable{}, fmt.Errorf("unsupported rates file %q", path)
	}
	if err != nil {
		return StaticTable{}, fmt.Errorf("parse rates file: %w", err)
	}
	perMDL := make(map[string]decimal.Decimal, len(parsed.Rates))
	for code, rate := range parsed.Rates {
		perMDL[code] = decimal.NewFromFloat(rate)
	}
	return NewStaticTable(perMDL)
}
