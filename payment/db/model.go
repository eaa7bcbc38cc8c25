package db

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
	StatusError   Status = "error" // superseded or failed QR
)

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

type Product struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // uuid
	URL       string    `gorm:"size:512;index" json:"url"`
	Name      string    `gorm:"size:255;index" json:"name"`
	Price     int64     `json:"price"` // whole Rupiah
	ImageURL  *string   `gorm:"size:512" json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Payments []TrackedPayment `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
}

// TrackedPayment is one issued QRIS that waits for payment on the external store.
type TrackedPayment struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`    // uuid
	ProductID string     `gorm:"size:36;index" json:"product_id"` // owning product
	Product   *Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Payload   string     `gorm:"type:text" json:"payload"`    // raw EMVCo payload
	QrisImage string     `gorm:"size:255" json:"qris_image"`  // served image path
	OrderID   string     `gorm:"size:128" json:"order_id"`    // external order reference, may be synthetic
	Amount    int64      `json:"amount"`                      // whole Rupiah
	Status    Status     `gorm:"size:16;index;default:pending" json:"status"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at"`
}

type AdminLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Action    string    `gorm:"size:64;index" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	Level     LogLevel  `gorm:"size:16" json:"level"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
