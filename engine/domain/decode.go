package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// RecordColumns are the fields every submitted record must carry.
var RecordColumns = []string{
	ColBrand, ColYear, ColUsedOrNew, ColTransmission, ColDriveType, ColFuelType,
	ColFuelConsumption, ColKilometres, ColCylinders, ColBodyType, ColDoors, ColSeats,
}

// DecodeRecord parses a JSON vehicle record. A syntactically broken body is
// returned as a plain JSON error; absent, null or mistyped fields come back
// as a *ValidationError. The decoded record is not validated.
func DecodeRecord(data []byte) (VehicleRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return VehicleRecord{}, NewValidationError("body", typeErr.Value, ErrWrongType)
		}
		return VehicleRecord{}, fmt.Errorf("domain: decode record: %w", err)
	}
	for _, col := range RecordColumns {
		raw, ok := fields[col]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return VehicleRecord{}, NewValidationError(col, "", ErrMissingField)
		}
	}

	var r VehicleRecord
	if err := json.Unmarshal(data, &r); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return VehicleRecord{}, NewValidationError(typeErr.Field, typeErr.Value, ErrWrongType)
		}
		return VehicleRecord{}, fmt.Errorf("domain: decode record: %w", err)
	}
	return r, nil
}
