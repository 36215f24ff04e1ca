package engine_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/model"
)

func observedEngine(t *testing.T) (*engine.Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	return engine.New(zap.New(core)), logs
}

func TestAggregateTotals(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, engine.ImpactTotals{}, engine.AggregateTotals(nil))
	})

	t.Run("sums every field", func(t *testing.T) {
		records := []model.EnvironmentalImpactRecord{
			{CarbonSavedGrams: 30000, WaterProvidedLitres: 10, MineralsSavedGrams: 5, WaterSavedLitres: 100},
			{CarbonSavedGrams: 20000, WaterProvidedLitres: 2.5, MineralsSavedGrams: 1, WaterSavedLitres: 50},
		}

		got := engine.AggregateTotals(records)

		assert.Equal(t, 50000.0, got.CarbonSaved)
		assert.Equal(t, 12.5, got.WaterProvided)
		assert.Equal(t, 6.0, got.MineralsSaved)
		assert.Equal(t, 150.0, got.WaterSaved)
		assert.Equal(t, int64(2), got.TreesEquivalent)
	})

	t.Run("trees rounded down", func(t *testing.T) {
		got := engine.AggregateTotals([]model.EnvironmentalImpactRecord{{CarbonSavedGrams: 20999}})
		assert.Equal(t, int64(0), got.TreesEquivalent)
	})
}

func TestBucketByMonth(t *testing.T) {
	now := time.Date(2026, time.October, 15, 10, 0, 0, 0, time.Local)
	records := []model.EnvironmentalImpactRecord{
		{CarbonSavedGrams: 100, WaterSavedLitres: 10, MineralsSavedGrams: 1, OrderDate: time.Date(2026, time.September, 10, 0, 0, 0, 0, time.Local)},
		{CarbonSavedGrams: 50, WaterSavedLitres: 5, MineralsSavedGrams: 2, OrderDate: time.Date(2026, time.October, 1, 0, 0, 0, 0, time.Local)},
		{CarbonSavedGrams: 25, OrderDate: time.Date(2026, time.October, 14, 0, 0, 0, 0, time.Local)},
		{CarbonSavedGrams: 999, OrderDate: time.Date(2026, time.January, 3, 0, 0, 0, 0, time.Local)},
	}

	buckets, err := engine.BucketByMonth(records, 3, now)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, "Aug 2026", buckets[0].Label)
	assert.Equal(t, "Sep 2026", buckets[1].Label)
	assert.Equal(t, "Oct 2026", buckets[2].Label)

	assert.Zero(t, buckets[0].Carbon)
	assert.Equal(t, 100.0, buckets[1].Carbon)
	assert.Equal(t, 10.0, buckets[1].Water)
	assert.Equal(t, 75.0, buckets[2].Carbon)
	assert.Equal(t, 2.0, buckets[2].Minerals)
}

func TestBucketByMonth_CrossesYear(t *testing.T) {
	now := time.Date(2026, time.February, 3, 0, 0, 0, 0, time.Local)

	buckets, err := engine.BucketByMonth([]model.EnvironmentalImpactRecord{
		{CarbonSavedGrams: 7, OrderDate: time.Date(2025, time.December, 31, 12, 0, 0, 0, time.Local)},
	}, 3, now)
	require.NoError(t, err)

	assert.Equal(t, "Dec 2025", buckets[0].Label)
	assert.Equal(t, 7.0, buckets[0].Carbon)
	assert.Equal(t, "Feb 2026", buckets[2].Label)
}

func TestBucketByMonth_InvalidCount(t *testing.T) {
	for _, n := range []int{0, -1, engine.MaxMonthCount + 1, 1 << 50} {
		_, err := engine.BucketByMonth(nil, n, time.Now())
		assert.True(t, errors.Is(err, model.ErrInvalidArgument), "month count %d", n)
	}

	buckets, err := engine.BucketByMonth(nil, engine.MaxMonthCount, time.Now())
	require.NoError(t, err)
	assert.Len(t, buckets, engine.MaxMonthCount)
}

func TestNormalizeForChart(t *testing.T) {
	in := []engine.MonthBucket{
		{Label: "a", Carbon: 50, Water: 0, Minerals: 3},
		{Label: "b", Carbon: 200, Water: 0, Minerals: 0},
		{Label: "c", Carbon: 0, Water: 0, Minerals: 6},
	}

	got := engine.NormalizeForChart(in)

	require.Len(t, got, 3)
	assert.Equal(t, []float64{25, 100, 0}, []float64{got[0].Carbon, got[1].Carbon, got[2].Carbon})
	assert.Equal(t, []float64{0, 0, 0}, []float64{got[0].Water, got[1].Water, got[2].Water})
	assert.Equal(t, []float64{50, 0, 100}, []float64{got[0].Minerals, got[1].Minerals, got[2].Minerals})
	assert.Equal(t, "b", got[1].Label)
	assert.Equal(t, 50.0, in[0].Carbon, "input must not be modified")
}

func TestComputeEquivalents(t *testing.T) {
	e, logs := observedEngine(t)

	settings := []model.EquivalencySetting{
		{ID: 1, Name: "trees planted", Description: "trees growing for a year", ConversionFactor: 21, ConversionOperation: model.OperationDivide, IsActive: true},
		{ID: 2, Name: "inactive", ConversionFactor: 1, ConversionOperation: model.OperationMultiply, IsActive: false},
		{ID: 3, Name: "broken", ConversionFactor: 0, ConversionOperation: model.OperationMultiply, IsActive: true},
		{ID: 4, Name: "phone charges", ConversionFactor: 121.6, ConversionOperation: model.OperationMultiply, IsActive: true},
		{ID: 5, Name: "unknown op", ConversionFactor: 2, ConversionOperation: "pow", IsActive: true},
	}

	got := e.ComputeEquivalents(100, settings)

	require.Len(t, got, 2)
	assert.Equal(t, engine.Equivalent{Name: "trees planted", Value: 5, Description: "trees growing for a year"}, got[0])
	assert.Equal(t, "phone charges", got[1].Name)
	assert.Equal(t, int64(12160), got[1].Value)

	assert.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "skip equivalency setting", entry.Message)
	}
}

func TestComputeEquivalents_NegativeAndNaNFactorsSkipped(t *testing.T) {
	e, logs := observedEngine(t)

	got := e.ComputeEquivalents(10, []model.EquivalencySetting{
		{Name: "neg", ConversionFactor: -3, ConversionOperation: model.OperationDivide, IsActive: true},
		{Name: "nan", ConversionFactor: math.NaN(), ConversionOperation: model.OperationDivide, IsActive: true},
	})

	assert.Empty(t, got)
	assert.Equal(t, 2, logs.Len())
}

func TestComputeEquivalents_MultiplyDivideSymmetry(t *testing.T) {
	e := engine.New(nil)

	for _, f := range []float64{0.5, 2, 21, 60, 0.00822, 18.3} {
		for _, kg := range []float64{0, 1, 100, 1234.5} {
			mul := e.ComputeEquivalents(kg, []model.EquivalencySetting{
				{Name: "x", ConversionFactor: f, ConversionOperation: model.OperationMultiply, IsActive: true},
			})
			div := e.ComputeEquivalents(kg, []model.EquivalencySetting{
				{Name: "x", ConversionFactor: 1 / f, ConversionOperation: model.OperationDivide, IsActive: true},
			})
			require.Len(t, mul, 1)
			require.Len(t, div, 1)
			assert.InDelta(t, mul[0].Value, div[0].Value, 1, "factor %v kg %v", f, kg)
		}
	}
}

func TestBuildMetrics(t *testing.T) {
	records := []model.EnvironmentalImpactRecord{
		{CarbonSavedGrams: 42000, WaterProvidedLitres: 300},
		{CarbonSavedGrams: 1000},
		{CarbonSavedGrams: 500, WaterProvidedLitres: 20},
	}
	progress := model.UserProgress{ExperiencePoints: 2500, CurrentStreak: 2, LongestStreak: 4}

	m := engine.BuildMetrics(records, progress)

	assert.Equal(t, int64(3), m.OrdersPlaced)
	assert.Equal(t, int64(2), m.FamiliesHelped)
	assert.Equal(t, 43500.0, m.CarbonSavedGrams)
	assert.Equal(t, int64(2), m.TreesEquivalent)
	assert.Equal(t, 3, m.Level)
	assert.Equal(t, 2, m.CurrentStreak)
	assert.Equal(t, 4, m.LongestStreak)
}
