package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubjectPredictionCreated is the NATS subject prediction events go to.
const SubjectPredictionCreated = "pricing.predictions.created"

// PredictionCreated announces a newly persisted prediction.
type PredictionCreated struct {
	EventID      string          `json:"event_id"`
	Type         string          `json:"type"`
	PredictionID int64           `json:"prediction_id"`
	OwnerID      int64           `json:"owner_id"`
	Brand        string          `json:"brand"`
	Year         int             `json:"production_year"`
	Price        decimal.Decimal `json:"prediction_price"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewPredictionCreated builds the event for a saved prediction.
func NewPredictionCreated(p Prediction) PredictionCreated {
	at := p.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return PredictionCreated{
		EventID:      uuid.NewString(),
		Type:         "prediction.created",
		PredictionID: p.ID,
		OwnerID:      p.OwnerID,
		Brand:        p.Brand,
		Year:         p.ProductionYear,
		Price:        p.PredictionPrice,
		OccurredAt:   at,
	}
}
