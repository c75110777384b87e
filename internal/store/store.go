package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("device not found")
	ErrInvalidID = errors.New("invalid device id")
	ErrConfig    = errors.New("store configuration error")
)

// Store is the device persistence contract. Every mutation touches a single
// document; returned devices are re-read after the write.
type Store interface {
	List(ctx context.Context) ([]Device, error)
	Create(ctx context.Context, d *Device) (*Device, error)
	Get(ctx context.Context, id string) (*Device, error)
	Update(ctx context.Context, id string, fields Fields, at time.Time) (*Device, error)
	SetStatus(ctx context.Context, id, status string, at time.Time) (*Device, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ParseID validates a 24-hex object id.
func ParseID(raw string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

// NewID returns a fresh object id in hex form.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

func prepareCreate(d *Device) {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = Now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	d.CreatedAt = d.CreatedAt.UTC().Truncate(time.Millisecond)
	d.UpdatedAt = d.UpdatedAt.UTC().Truncate(time.Millisecond)
}
