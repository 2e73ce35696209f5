package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the header a group of movements belongs to.
type Transaction struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	TransactedAt DateSerial `json:"transacted_at"`
	CreatedAt    time.Time  `json:"created_at"`
}
