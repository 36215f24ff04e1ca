package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// ErrInvalidImpact возвращается для записи эффекта с отрицательными или нечисловыми значениями.
var ErrInvalidImpact = errors.New("invalid impact record")

// ValidateImpactRecord проверяет запись об экологическом эффекте перед сохранением.
func ValidateImpactRecord(r model.EnvironmentalImpactRecord) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"carbon_saved_grams", r.CarbonSavedGrams},
		{"water_provided_litres", r.WaterProvidedLitres},
		{"minerals_saved_grams", r.MineralsSavedGrams},
		{"water_saved_litres", r.WaterSavedLitres},
	}

	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidImpact, f.name, f.value)
		}
	}

	if r.OrderDate.IsZero() {
		return fmt.Errorf("%w: order_date is required", ErrInvalidImpact)
	}

	return nil
}
