package domain

import (
	"strconv"
	"strings"
)

// ValidateRecord checks field bounds, enum membership and the rule that a NEW
// vehicle has travelled 0 km. It never touches trained artifacts.
func ValidateRecord(r VehicleRecord) error {
	if strings.TrimSpace(r.Brand) == "" {
		return NewValidationError(ColBrand, r.Brand, ErrBlankCategorical)
	}
	if strings.TrimSpace(r.BodyType) == "" {
		return NewValidationError(ColBodyType, r.BodyType, ErrBlankCategorical)
	}

	if r.Year < MinYear || r.Year > MaxYear {
		return NewValidationError(ColYear, strconv.Itoa(r.Year), ErrOutOfRange)
	}

	if !ValidConditions[r.UsedOrNew] {
		return NewValidationError(ColUsedOrNew, string(r.UsedOrNew), ErrUnknownCategory)
	}
	if !ValidTransmissions[r.Transmission] {
		return NewValidationError(ColTransmission, string(r.Transmission), ErrUnknownCategory)
	}
	if !ValidDriveTypes[r.DriveType] {
		return NewValidationError(ColDriveType, string(r.DriveType), ErrUnknownCategory)
	}
	if !ValidFuelTypes[r.FuelType] {
		return NewValidationError(ColFuelType, string(r.FuelType), ErrUnknownCategory)
	}

	// NaN fails this comparison too.
	if !(r.FuelConsumption >= MinFuelConsumption) {
		return NewValidationError(ColFuelConsumption, strconv.FormatFloat(r.FuelConsumption, 'g', -1, 64), ErrOutOfRange)
	}
	if r.Kilometres < 0 {
		return NewValidationError(ColKilometres, strconv.Itoa(r.Kilometres), ErrOutOfRange)
	}
	if r.UsedOrNew == ConditionNew && r.Kilometres != 0 {
		return NewValidationError(ColKilometres, strconv.Itoa(r.Kilometres), ErrNewWithDistance)
	}

	if err := checkRange(ColCylinders, r.CylindersinEngine, MinCylinders, MaxCylinders); err != nil {
		return err
	}
	if err := checkRange(ColDoors, r.Doors, MinDoors, MaxDoors); err != nil {
		return err
	}
	return checkRange(ColSeats, r.Seats, MinSeats, MaxSeats)
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return NewValidationError(field, strconv.Itoa(v), ErrOutOfRange)
	}
	return nil
}
