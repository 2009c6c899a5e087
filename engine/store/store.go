// Package store persists users and their price predictions in Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/WessleyAI/wessley-pricing/engine/domain"
	"github.com/WessleyAI/wessley-pricing/pkg/repo"
)

// Errors returned by the stores.
var (
	ErrNotFound  = repo.ErrNotFound
	ErrDuplicate = errors.New("store: duplicate")
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// User is an account allowed to request predictions.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Password  string    `db:"password" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Users stores accounts.
type Users struct {
	repo *repo.SQLRepo[User, int64]
}

// NewUsers creates a Users store.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{repo: repo.NewSQLRepo[User, int64](db, "users", []string{"email", "password"})}
}

// Create inserts a user. Password must already be hashed. Emails are
// compared case-insensitively.
func (u *Users) Create(ctx context.Context, email, passwordHash string) (User, error) {
	created, err := u.repo.Create(ctx, User{Email: normalizeEmail(email), Password: passwordHash})
	if errors.Is(err, repo.ErrConflict) {
		return User{}, fmt.Errorf("%w: email %s", ErrDuplicate, email)
	}
	return created, err
}

// ByEmail looks a user up by email.
func (u *Users) ByEmail(ctx context.Context, email string) (User, error) {
	return u.repo.FindOne(ctx, map[string]any{"email": normalizeEmail(email)})
}

// ByID looks a user up by id.
func (u *Users) ByID(ctx context.Context, id int64) (User, error) {
	return u.repo.Get(ctx, id)
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Prediction is one persisted price estimate and the record it was made for.
type Prediction struct {
	ID               int64           `db:"prediction_id" json:"prediction_id"`
	OwnerID          int64           `db:"owner_id" json:"owner_id"`
	Brand            string          `db:"brand" json:"brand"`
	ProductionYear   int             `db:"production_year" json:"production_year"`
	UsedOrNew        string          `db:"used_or_new" json:"used_or_new"`
	Transmission     string          `db:"transmission" json:"transmission"`
	DriveType        string          `db:"drive_type" json:"drive_type"`
	FuelType         string          `db:"fuel_type" json:"fuel_type"`
	FuelConsumption  float64         `db:"fuel_consumption" json:"fuel_consumption"`
	Kilometres       int             `db:"kilometres" json:"kilometres"`
	CylinderInEngine int             `db:"cylinder_in_engine" json:"cylinder_in_engine"`
	BodyType         string          `db:"body_type" json:"body_type"`
	Doors            int             `db:"doors" json:"doors"`
	Seats            int             `db:"seats" json:"seats"`
	PredictionPrice  decimal.Decimal `db:"prediction_price" json:"prediction_price"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// MarshalJSON writes prediction_price as a JSON number.
func (p Prediction) MarshalJSON() ([]byte, error) {
	type plain Prediction
	price, _ := p.PredictionPrice.Float64()
	return json.Marshal(struct {
		plain
		PredictionPrice float64 `json:"prediction_price"`
	}{plain(p), price})
}

// NewPrediction builds an unsaved Prediction for owner.
func NewPrediction(owner int64, r domain.VehicleRecord, price decimal.Decimal) Prediction {
	return Prediction{
		OwnerID:          owner,
		Brand:            r.Brand,
		ProductionYear:   r.Year,
		UsedOrNew:        string(r.UsedOrNew),
		Transmission:     string(r.Transmission),
		DriveType:        string(r.DriveType),
		FuelType:         string(r.FuelType),
		FuelConsumption:  r.FuelConsumption,
		Kilometres:       r.Kilometres,
		CylinderInEngine: r.CylindersinEngine,
		BodyType:         r.BodyType,
		Doors:            r.Doors,
		Seats:            r.Seats,
		PredictionPrice:  price.Round(2),
	}
}

var predictionColumns = []string{
	"owner_id", "brand", "production_year", "used_or_new", "transmission", "drive_type",
	"fuel_type", "fuel_consumption", "kilometres", "cylinder_in_engine", "body_type",
	"doors", "seats", "prediction_price",
}

// Predictions stores estimates. Every read and delete is scoped to an owner.
type Predictions struct {
	repo *repo.SQLRepo[Prediction, int64]
}

// NewPredictions creates a Predictions store.
func NewPredictions(db *sqlx.DB) *Predictions {
	return &Predictions{repo: repo.NewSQLRepo[Prediction, int64](db, "price_predictions", predictionColumns,
		repo.WithIDColumn[Prediction, int64]("prediction_id"),
		repo.WithOrderBy[Prediction, int64]("created_at DESC, prediction_id DESC"),
	)}
}

// Save inserts p and returns it with its id and timestamp.
func (s *Predictions) Save(ctx context.Context, p Prediction) (Prediction, error) {
	return s.repo.Create(ctx, p)
}

// List returns owner's predictions, newest first.
func (s *Predictions) List(ctx context.Context, owner int64, limit, offset int) ([]Prediction, error) {
	return s.repo.List(ctx, repo.ListOpts{
		Limit:  limit,
		Offset: offset,
		Filter: map[string]any{"owner_id": owner},
	})
}

// Get returns prediction id if owner made it.
func (s *Predictions) Get(ctx context.Context, owner, id int64) (Prediction, error) {
	return s.repo.FindOne(ctx, map[string]any{"prediction_id": id, "owner_id": owner})
}

// Delete removes prediction id if owner made it.
func (s *Predictions) Delete(ctx context.Context, owner, id int64) error {
	_, err := s.repo.DeleteWhere(ctx, map[string]any{"prediction_id": id, "owner_id": owner})
	return err
}
