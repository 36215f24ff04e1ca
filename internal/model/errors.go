package model

import "errors"

var (
	// ErrInvalidArgument возвращается при некорректном аргументе вызова (отрицательный опыт, число месяцев и т.п.).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownStage возвращается для неизвестного имени этапа доставки.
	ErrUnknownStage = errors.New("unknown delivery stage")
	// ErrUnknownThresholdType описывает ошибку конфигурации достижения.
	ErrUnknownThresholdType = errors.New("unknown achievement threshold type")
	// ErrInvalidTransition возвращается при попытке отменить завершённый этап или открытое достижение.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInvalidConversion описывает некорректную настройку эквивалента.
	ErrInvalidConversion = errors.New("invalid equivalency conversion")
)
