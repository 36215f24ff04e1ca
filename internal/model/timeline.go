package model

import "time"

// Stage: именованный этап выполнения заказа.
type Stage string

const (
	StageOrderPlaced      Stage = "orderPlaced"
	StagePaymentConfirmed Stage = "paymentConfirmed"
	StageDeviceAllocated  Stage = "deviceAllocated"
	StageDataWiped        Stage = "dataWiped"
	StageQualityChecks    Stage = "qualityChecks"
	StageRefurbishment    Stage = "refurbishment"
	StageFinalInspection  Stage = "finalInspection"
	StagePackaged         Stage = "packaged"
	StageDispatched       Stage = "dispatched"
	StageInTransit        Stage = "inTransit"
	StageOutForDelivery   Stage = "outForDelivery"
	StageOrderDelivered   Stage = "orderDelivered"
	StageOrderCompleted   Stage = "orderCompleted"
)

// Stages перечисляет этапы в объявленном порядке.
var Stages = [...]Stage{
	StageOrderPlaced,
	StagePaymentConfirmed,
	StageDeviceAllocated,
	StageDataWiped,
	StageQualityChecks,
	StageRefurbishment,
	StageFinalInspection,
	StagePackaged,
	StageDispatched,
	StageInTransit,
	StageOutForDelivery,
	StageOrderDelivered,
	StageOrderCompleted,
}

// StageCount: число этапов хронологии доставки.
const StageCount = len(Stages)

// StageIndex возвращает позицию этапа в объявленном порядке.
func StageIndex(s Stage) (int, bool) {
	for i, st := range Stages {
		if st == s {
			return i, true
		}
	}
	return 0, false
}

// DeliveryTimeline: набор флагов этапов одного заказа. Флаг выставляется один раз и не сбрасывается.
type DeliveryTimeline struct {
	OrderNumber string
	Flags       [StageCount]bool
	UpdatedAt   time.Time
}

// Done сообщает, завершён ли этап. Для неизвестного этапа возвращает false.
func (t DeliveryTimeline) Done(s Stage) bool {
	i, ok := StageIndex(s)
	return ok && t.Flags[i]
}

// CompletedStages возвращает завершённые этапы в объявленном порядке.
func (t DeliveryTimeline) CompletedStages() []Stage {
	res := make([]Stage, 0, StageCount)
	for i, done := range t.Flags {
		if done {
			res = append(res, Stages[i])
		}
	}
	return res
}

// TimelineProgress: сводка выполнения хронологии.
type TimelineProgress struct {
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	Percent        int `json:"percent"`
}
