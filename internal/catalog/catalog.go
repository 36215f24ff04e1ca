// Package catalog загружает каталог достижений и эквивалентов из TOML.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gosimple/slug"

	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/model"
)

//go:embed default.toml
var defaultTOML string

// ErrInvalidCatalog возвращается для каталога с некорректными записями.
var ErrInvalidCatalog = errors.New("invalid catalog")

type file struct {
	Achievements  []achievement `toml:"achievement"`
	Equivalencies []equivalency `toml:"equivalency"`
}

type achievement struct {
	Code           string  `toml:"code"`
	Name           string  `toml:"name"`
	Description    string  `toml:"description"`
	ThresholdType  string  `toml:"threshold_type"`
	ThresholdValue float64 `toml:"threshold_value"`
	Points         int64   `toml:"points"`
	Active         *bool   `toml:"active"`
}

type equivalency struct {
	Name                string  `toml:"name"`
	Description         string  `toml:"description"`
	ConversionFactor    float64 `toml:"conversion_factor"`
	ConversionOperation string  `toml:"conversion_operation"`
	Active              *bool   `toml:"active"`
}

// Catalog: проверенный набор достижений и эквивалентов, готовый к сохранению.
type Catalog struct {
	Achievements  []model.AchievementDefinition
	Equivalencies []model.EquivalencySetting
}

// Default возвращает встроенный каталог.
func Default() (Catalog, error) {
	return Parse(defaultTOML)
}

// Load читает каталог из TOML-файла.
func Load(path string) (Catalog, error) {
	var f file
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return Catalog{}, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return build(f, md)
}

// Parse разбирает каталог из строки TOML.
func Parse(data string) (Catalog, error) {
	var f file
	md, err := toml.Decode(data, &f)
	if err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return build(f, md)
}

func build(f file, md toml.MetaData) (Catalog, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Catalog{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidCatalog, strings.Join(keys, ", "))
	}

	var c Catalog
	codes := make(map[string]bool, len(f.Achievements))

	for i, a := range f.Achievements {
		d, err := a.definition()
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: achievement #%d: %w", ErrInvalidCatalog, i+1, err)
		}
		if codes[d.Code] {
			return Catalog{}, fmt.Errorf("%w: duplicate achievement code %q", ErrInvalidCatalog, d.Code)
		}
		codes[d.Code] = true
		c.Achievements = append(c.Achievements, d)
	}

	names := make(map[string]bool, len(f.Equivalencies))
	for i, e := range f.Equivalencies {
		s, err := e.setting()
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: equivalency #%d: %w", ErrInvalidCatalog, i+1, err)
		}
		if names[s.Name] {
			return Catalog{}, fmt.Errorf("%w: duplicate equivalency %q", ErrInvalidCatalog, s.Name)
		}
		names[s.Name] = true
		c.Equivalencies = append(c.Equivalencies, s)
	}

	return c, nil
}

// definition проверяет запись и приводит код к виду slug. Без кода он строится из названия.
func (a achievement) definition() (model.AchievementDefinition, error) {
	if strings.TrimSpace(a.Name) == "" {
		return model.AchievementDefinition{}, errors.New("name is required")
	}

	code := a.Code
	if code == "" {
		code = a.Name
	}
	code = slug.Make(code)
	if code == "" {
		return model.AchievementDefinition{}, fmt.Errorf("code %q has no usable characters", a.Code)
	}

	t := model.ThresholdType(a.ThresholdType)
	if _, err := engine.MetricValue(t, model.Metrics{}); err != nil {
		return model.AchievementDefinition{}, err
	}
	if !(a.ThresholdValue > 0) || math.IsInf(a.ThresholdValue, 0) {
		return model.AchievementDefinition{}, fmt.Errorf("threshold_value %v must be positive", a.ThresholdValue)
	}
	if a.Points < 0 {
		return model.AchievementDefinition{}, fmt.Errorf("points %d must be non-negative", a.Points)
	}

	return model.AchievementDefinition{
		Code:           code,
		Name:           a.Name,
		Description:    a.Description,
		ThresholdType:  t,
		ThresholdValue: a.ThresholdValue,
		Points:         a.Points,
		IsActive:       a.Active == nil || *a.Active,
	}, nil
}

func (e equivalency) setting() (model.EquivalencySetting, error) {
	if strings.TrimSpace(e.Name) == "" {
		return model.EquivalencySetting{}, errors.New("name is required")
	}

	op := model.ConversionOperation(e.ConversionOperation)
	if op != model.OperationMultiply && op != model.OperationDivide {
		return model.EquivalencySetting{}, fmt.Errorf("%w: operation %q", model.ErrInvalidConversion, e.ConversionOperation)
	}
	if !(e.ConversionFactor > 0) || math.IsInf(e.ConversionFactor, 0) {
		return model.EquivalencySetting{}, fmt.Errorf("%w: factor %v must be positive", model.ErrInvalidConversion, e.ConversionFactor)
	}

	return model.EquivalencySetting{
		Name:                e.Name,
		Description:         e.Description,
		ConversionFactor:    e.ConversionFactor,
		ConversionOperation: op,
		IsActive:            e.Active == nil || *e.Active,
	}, nil
}
