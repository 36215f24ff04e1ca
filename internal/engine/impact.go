package engine

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// CarbonGramsPerTree: граммы CO2, поглощаемые одним деревом за год.
const CarbonGramsPerTree = 21000

// ImpactTotals: суммарный экологический эффект пользователя.
type ImpactTotals struct {
	CarbonSaved     float64 `json:"carbon_saved"`
	WaterProvided   float64 `json:"water_provided"`
	MineralsSaved   float64 `json:"minerals_saved"`
	WaterSaved      float64 `json:"water_saved"`
	TreesEquivalent int64   `json:"trees_equivalent"`
}

// MonthBucket: эффект за один календарный месяц.
type MonthBucket struct {
	Label    string  `json:"label"`
	Carbon   float64 `json:"carbon"`
	Water    float64 `json:"water"`
	Minerals float64 `json:"minerals"`
}

// Equivalent: эффект в понятных пользователю единицах.
type Equivalent struct {
	Name        string `json:"name"`
	Value       int64  `json:"value"`
	Description string `json:"description"`
}

// AggregateTotals суммирует записи. Пустой набор даёт нулевые итоги.
func AggregateTotals(records []model.EnvironmentalImpactRecord) ImpactTotals {
	var t ImpactTotals
	for _, r := range records {
		t.CarbonSaved += r.CarbonSavedGrams
		t.WaterProvided += r.WaterProvidedLitres
		t.MineralsSaved += r.MineralsSavedGrams
		t.WaterSaved += r.WaterSavedLitres
	}
	if t.CarbonSaved > 0 {
		t.TreesEquivalent = int64(math.Floor(t.CarbonSaved / CarbonGramsPerTree))
	}
	return t
}

// MaxMonthCount ограничивает длину помесячного ряда десятью годами.
const MaxMonthCount = 120

// BucketByMonth раскладывает записи по календарным месяцам, заканчивая месяцем now.
// Месяцы без записей присутствуют с нулями и идут от старых к новым.
func BucketByMonth(records []model.EnvironmentalImpactRecord, monthCount int, now time.Time) ([]MonthBucket, error) {
	if monthCount < 1 || monthCount > MaxMonthCount {
		return nil, fmt.Errorf("%w: month count must be in [1, %d], got %d", model.ErrInvalidArgument, MaxMonthCount, monthCount)
	}

	loc := now.Location()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	first := current.AddDate(0, -(monthCount - 1), 0)

	buckets := make([]MonthBucket, monthCount)
	for i := range buckets {
		buckets[i].Label = first.AddDate(0, i, 0).Format("Jan 2006")
	}

	for _, r := range records {
		d := r.OrderDate.In(loc)
		idx := monthsBetween(first, d)
		if idx < 0 || idx >= monthCount {
			continue
		}
		buckets[idx].Carbon += r.CarbonSavedGrams
		buckets[idx].Water += r.WaterSavedLitres
		buckets[idx].Minerals += r.MineralsSavedGrams
	}

	return buckets, nil
}

func monthsBetween(from, t time.Time) int {
	return (t.Year()-from.Year())*12 + int(t.Month()) - int(from.Month())
}

// NormalizeForChart масштабирует каждую метрику в диапазон 0–100 относительно максимума её ряда.
func NormalizeForChart(buckets []MonthBucket) []MonthBucket {
	var maxCarbon, maxWater, maxMinerals float64
	for _, b := range buckets {
		maxCarbon = math.Max(maxCarbon, b.Carbon)
		maxWater = math.Max(maxWater, b.Water)
		maxMinerals = math.Max(maxMinerals, b.Minerals)
	}

	res := make([]MonthBucket, len(buckets))
	for i, b := range buckets {
		res[i] = MonthBucket{
			Label:    b.Label,
			Carbon:   scale(b.Carbon, maxCarbon),
			Water:    scale(b.Water, maxWater),
			Minerals: scale(b.Minerals, maxMinerals),
		}
	}
	return res
}

func scale(v, maxV float64) float64 {
	if maxV <= 0 || v <= 0 {
		return 0
	}
	return v / maxV * 100
}

// ComputeEquivalents пересчитывает сэкономленный углерод (кг) по активным настройкам.
// Некорректная настройка пропускается с предупреждением и не влияет на остальные.
func (e *Engine) ComputeEquivalents(carbonSavedKg float64, settings []model.EquivalencySetting) []Equivalent {
	res := make([]Equivalent, 0, len(settings))
	for _, s := range settings {
		if !s.IsActive {
			continue
		}

		v, err := convert(carbonSavedKg, s)
		if err != nil {
			e.logger.Warn("skip equivalency setting",
				zap.Int64("settingID", s.ID),
				zap.String("name", s.Name),
				zap.Error(err),
			)
			continue
		}

		res = append(res, Equivalent{
			Name:        s.Name,
			Value:       int64(math.Round(v)),
			Description: s.Description,
		})
	}
	return res
}

func convert(kg float64, s model.EquivalencySetting) (float64, error) {
	f := s.ConversionFactor
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("%w: factor %v must be positive", model.ErrInvalidConversion, f)
	}

	switch s.ConversionOperation {
	case model.OperationMultiply:
		return kg * f, nil
	case model.OperationDivide:
		return kg / f, nil
	default:
		return 0, fmt.Errorf("%w: operation %q", model.ErrInvalidConversion, s.ConversionOperation)
	}
}

// GramsToKg переводит граммы в килограммы.
func GramsToKg(g float64) float64 {
	return g / 1000
}
