package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidMaterial     = errors.New("invalid material class")
	ErrInvalidDiameter     = errors.New("invalid diameter")
	ErrInvalidActivityKind = errors.New("invalid activity kind")
	ErrInvalidHours        = errors.New("invalid hours")
	ErrInvalidCrew         = errors.New("invalid crew")
	ErrInvalidDetail       = errors.New("invalid activity detail")
	ErrInvalidDate         = errors.New("invalid date")
)
