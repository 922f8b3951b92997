package subjects

import (
	"time"
)

// Subject is a pre-provisioned principal. There is no self-registration path:
// login only authenticates subjects that already exist.
type Subject struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subject) TableName() string {
	return "subjects"
}
