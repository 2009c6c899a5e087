// Package domain defines the vehicle record accepted by the pricing engine,
// its fixed vocabularies, and the validation gate applied before a record is
// allowed anywhere near the trained artifacts.
package domain

// Condition is the usage condition of a vehicle.
type Condition string

const (
	ConditionUsed Condition = "USED"
	ConditionNew  Condition = "NEW"
	ConditionDemo Condition = "DEMO"
)

// Transmission is the gearbox type.
type Transmission string

const (
	TransmissionAutomatic Transmission = "Automatic"
	TransmissionManual    Transmission = "Manual"
)

// DriveType is the drivetrain layout.
type DriveType string

const (
	Drive4WD   DriveType = "4WD"
	DriveAWD   DriveType = "AWD"
	DriveFront DriveType = "Front"
	DriveOther DriveType = "Other"
	DriveRear  DriveType = "Rear"
)

// FuelType is the fuel the engine runs on.
type FuelType string

const (
	FuelDiesel   FuelType = "Diesel"
	FuelHybrid   FuelType = "Hybrid"
	FuelLPG      FuelType = "LPG"
	FuelPremium  FuelType = "Premium"
	FuelUnleaded FuelType = "Unleaded"
)

// VehicleRecord is one vehicle description submitted for pricing.
// JSON names match the dataset column names the model was trained on.
type VehicleRecord struct {
	Brand             string       `json:"Brand"`
	Year              int          `json:"Year"`
	UsedOrNew         Condition    `json:"UsedOrNew"`
	Transmission      Transmission `json:"Transmission"`
	DriveType         DriveType    `json:"DriveType"`
	FuelType          FuelType     `json:"FuelType"`
	FuelConsumption   float64      `json:"FuelConsumption"`
	Kilometres        int          `json:"Kilometres"`
	CylindersinEngine int          `json:"CylindersinEngine"`
	BodyType          string       `json:"BodyType"`
	Doors             int          `json:"Doors"`
	Seats             int          `json:"Seats"`
}

// Category returns the string value of a categorical column.
func (r VehicleRecord) Category(column string) (string, bool) {
	switch column {
	case ColBrand:
		return r.Brand, true
	case ColUsedOrNew:
		return string(r.UsedOrNew), true
	case ColTransmission:
		return string(r.Transmission), true
	case ColDriveType:
		return string(r.DriveType), true
	case ColFuelType:
		return string(r.FuelType), true
	case ColBodyType:
		return r.BodyType, true
	}
	return "", false
}

// Numeric returns the value of a numeric pass-through column.
func (r VehicleRecord) Numeric(column string) (float64, bool) {
	switch column {
	case ColYear:
		return float64(r.Year), true
	case ColFuelConsumption:
		return r.FuelConsumption, true
	case ColKilometres:
		return float64(r.Kilometres), true
	case ColCylinders:
		return float64(r.CylindersinEngine), true
	case ColDoors:
		return float64(r.Doors), true
	case ColSeats:
		return float64(r.Seats), true
	}
	return 0, false
}
