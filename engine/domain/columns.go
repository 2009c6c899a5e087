package domain

// Dataset column names.
const (
	ColBrand           = "Brand"
	ColYear            = "Year"
	ColUsedOrNew       = "UsedOrNew"
	ColTransmission    = "Transmission"
	ColDriveType       = "DriveType"
	ColFuelType        = "FuelType"
	ColFuelConsumption = "FuelConsumption"
	ColKilometres      = "Kilometres"
	ColCylinders       = "CylindersinEngine"
	ColBodyType        = "BodyType"
	ColDoors           = "Doors"
	ColSeats           = "Seats"
	ColPrice           = "Price"
)

// OneHotColumns are expanded into one indicator column per fitted category.
var OneHotColumns = []string{ColUsedOrNew, ColTransmission, ColDriveType, ColFuelType}

// LabelColumns are replaced by an integer index into a fitted vocabulary.
var LabelColumns = []string{ColBrand, ColBodyType}

// BaseColumns is the order of the non-expanded part of the feature row:
// the record's columns with the one-hot sources removed.
var BaseColumns = []string{
	ColBrand, ColYear, ColFuelConsumption, ColKilometres,
	ColCylinders, ColBodyType, ColDoors, ColSeats,
}

// Accepted ranges.
const (
	MinYear            = 1999
	MaxYear            = 2024
	MinFuelConsumption = 1.0
	MinCylinders       = 1
	MaxCylinders       = 12
	MinDoors           = 2
	MaxDoors           = 12
	MinSeats           = 2
	MaxSeats           = 12
)

// ValidConditions is the set of recognised usage conditions.
var ValidConditions = map[Condition]bool{
	ConditionUsed: true, ConditionNew: true, ConditionDemo: true,
}

// ValidTransmissions is the set of recognised transmissions.
var ValidTransmissions = map[Transmission]bool{
	TransmissionAutomatic: true, TransmissionManual: true,
}

// ValidDriveTypes is the set of recognised drive types.
var ValidDriveTypes = map[DriveType]bool{
	Drive4WD: true, DriveAWD: true, DriveFront: true, DriveOther: true, DriveRear: true,
}

// ValidFuelTypes is the set of recognised fuel types.
var ValidFuelTypes = map[FuelType]bool{
	FuelDiesel: true, FuelHybrid: true, FuelLPG: true, FuelPremium: true, FuelUnleaded: true,
}
