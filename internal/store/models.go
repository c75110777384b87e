package store

import "time"

const (
	TypeRouter = "router"
	TypeSwitch = "switch"
	TypeServer = "server"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Device is the persisted network device. Location and Notes are nullable.
type Device struct {
	ID        string    `json:"id" gorm:"primaryKey;size:24"`
	Name      string    `json:"name" gorm:"not null"`
	IPAddress string    `json:"ip_address" gorm:"column:ip_address;not null"`
	Type      string    `json:"type" gorm:"not null"`
	Location  *string   `json:"location"`
	Status    string    `json:"status" gorm:"not null;default:offline"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at" gorm:"index;autoCreateTime:false"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
}

func (Device) TableName() string { return "devices" }

// Fields is a validated partial update keyed by column name
// (name, ip_address, type, location, status, notes). A nil value clears a
// nullable column.
type Fields map[string]any

// Now returns the current UTC time at the precision the stores keep.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func normalize(d *Device) {
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	if d.Status == "" {
		d.Status = StatusOffline
	}
}
