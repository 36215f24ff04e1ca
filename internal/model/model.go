// Package model содержит доменные сущности портала восстановленных ноутбуков.
package model

import "time"

// Order описывает заказ покупателя.
type Order struct {
	Number   string
	UserID   int64
	PlacedAt time.Time
}

// EnvironmentalImpactRecord содержит экологический эффект одного заказа.
// Запись рассчитывается внешним шагом и после этого не изменяется.
type EnvironmentalImpactRecord struct {
	OrderNumber         string    `json:"order_number"`
	CarbonSavedGrams    float64   `json:"carbon_saved_grams"`
	WaterProvidedLitres float64   `json:"water_provided_litres"`
	MineralsSavedGrams  float64   `json:"minerals_saved_grams"`
	WaterSavedLitres    float64   `json:"water_saved_litres"`
	OrderDate           time.Time `json:"order_date"`
}

// UserProgress хранит прогресс пользователя. Уровень не хранится, а вычисляется из опыта.
type UserProgress struct {
	UserID           int64      `json:"user_id"`
	ExperiencePoints int64      `json:"experience_points"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

// XPPerLevel: стоимость одного уровня в очках опыта.
const XPPerLevel int64 = 1000

// Level возвращает уровень, соответствующий накопленному опыту.
func (p UserProgress) Level() int {
	if p.ExperiencePoints < 0 {
		return 1
	}
	return int(p.ExperiencePoints/XPPerLevel) + 1
}

// ThresholdType определяет метрику, по которой открывается достижение.
type ThresholdType string

const (
	ThresholdCarbonSaved    ThresholdType = "carbon_saved"
	ThresholdFamiliesHelped ThresholdType = "families_helped"
	ThresholdOrdersPlaced   ThresholdType = "orders_placed"
	ThresholdStreakDays     ThresholdType = "streak_days"
	ThresholdLongestStreak  ThresholdType = "longest_streak"
	ThresholdWaterSaved     ThresholdType = "water_saved"
	ThresholdWaterProvided  ThresholdType = "water_provided"
	ThresholdMineralsSaved  ThresholdType = "minerals_saved"
	ThresholdTreesPlanted   ThresholdType = "trees_planted"
	ThresholdLevelReached   ThresholdType = "level_reached"
)

// AchievementDefinition описывает достижение, настроенное администратором.
type AchievementDefinition struct {
	ID             int64         `json:"id"`
	Code           string        `json:"code"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	ThresholdType  ThresholdType `json:"threshold_type"`
	ThresholdValue float64       `json:"threshold_value"`
	Points         int64         `json:"points"`
	IsActive       bool          `json:"is_active"`
}

// AchievementProgress описывает прогресс пользователя по одному достижению.
type AchievementProgress struct {
	AchievementID   int64      `json:"achievement_id"`
	CurrentValue    float64    `json:"current_value"`
	ProgressPercent int        `json:"progress_percent"`
	IsUnlocked      bool       `json:"is_unlocked"`
	UnlockedAt      *time.Time `json:"unlocked_at,omitempty"`
}

// ConversionOperation задаёт операцию пересчёта углерода в эквивалент.
type ConversionOperation string

const (
	OperationMultiply ConversionOperation = "multiply"
	OperationDivide   ConversionOperation = "divide"
)

// EquivalencySetting описывает пересчёт сэкономленного углерода в понятную величину.
type EquivalencySetting struct {
	ID                  int64               `json:"id"`
	Name                string              `json:"name"`
	Description         string              `json:"description"`
	ConversionFactor    float64             `json:"conversion_factor"`
	ConversionOperation ConversionOperation `json:"conversion_operation"`
	IsActive            bool                `json:"is_active"`
}

// Metrics: агрегированные показатели пользователя для оценки достижений.
type Metrics struct {
	CarbonSavedGrams    float64
	WaterProvidedLitres float64
	MineralsSavedGrams  float64
	WaterSavedLitres    float64
	TreesEquivalent     int64
	FamiliesHelped      int64
	OrdersPlaced        int64
	CurrentStreak       int
	LongestStreak       int
	Level               int
}

// ActivityType описывает событие, продлевающее серию и начисляющее опыт.
type ActivityType string

const (
	ActivityOrderPlaced ActivityType = "order_placed"
	ActivityDailyLogin  ActivityType = "daily_login"
	ActivityShare       ActivityType = "share"
)

// UserState: снимок изменяемого состояния пользователя, который сервис обновляет под блокировкой.
// Impact читается под той же блокировкой и не сохраняется обратно.
type UserState struct {
	Progress     UserProgress
	Achievements map[int64]AchievementProgress
	Impact       []EnvironmentalImpactRecord
}
