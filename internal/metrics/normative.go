package metrics

import (
	"fmt"
	"os"
	"strings"

	"github.com/konsulin-care/focus/internal/models"
	"gopkg.in/yaml.v3"
)

// NormativeLookup finds the reference row for a subject.
type NormativeLookup interface {
	Lookup(age int, gender string) (models.NormativeStats, bool)
}

// NormativeRow is one entry of the normative YAML file.
type NormativeRow struct {
	AgeMin                int `yaml:"age_min"`
	AgeMax                int `yaml:"age_max"`
	models.NormativeStats `yaml:",inline"`
}

// NormativeTable holds the reference data loaded from YAML.
type NormativeTable struct {
	Source string         `yaml:"source"`
	Rows   []NormativeRow `yaml:"rows"`
}

// LoadNormativeTable reads and parses a normative YAML file.
func LoadNormativeTable(path string) (*NormativeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read normative file: %w", err)
	}
	return ParseNormativeTable(data)
}

func ParseNormativeTable(data []byte) (*NormativeTable, error) {
	var table NormativeTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal normative YAML: %w", err)
	}
	for i, row := range table.Rows {
		if row.AgeMax < row.AgeMin {
			return nil, &models.ConfigError{
				Field:  fmt.Sprintf("rows[%d]", i),
				Reason: fmt.Sprintf("age_max %d below age_min %d", row.AgeMax, row.AgeMin),
			}
		}
		if row.AgeRange == "" {
			table.Rows[i].AgeRange = fmt.Sprintf("%d-%d", row.AgeMin, row.AgeMax)
		}
	}
	return &table, nil
}

// Lookup returns the first row covering age whose gender matches.
// A row with gender "any" matches every subject.
func (t *NormativeTable) Lookup(age int, gender string) (models.NormativeStats, bool) {
	if t == nil {
		return models.NormativeStats{}, false
	}
	g := normalizeGender(gender)
	for _, row := range t.Rows {
		if age < row.AgeMin || age > row.AgeMax {
			continue
		}
		rg := normalizeGender(row.Gender)
		if rg == g || rg == "any" {
			return row.NormativeStats, true
		}
	}
	return models.NormativeStats{}, false
}

func normalizeGender(g string) string {
	switch g = strings.ToLower(strings.TrimSpace(g)); g {
	case "m":
		return "male"
	case "f":
		return "female"
	default:
		return g
	}
}
