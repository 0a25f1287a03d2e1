package models

import "time"

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleGuest = "guest"
)

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	RestaurantID *uint  `gorm:"index" json:"restaurant_id,omitempty"`
	Name         string `gorm:"type:varchar(255); not null" json:"name"`
	Email        string `gorm:"type:varchar(255); unique;not null" json:"email"`
	Password     string `gorm:"type:varchar(255); not null" json:"-"`
	Role         string `gorm:"type:varchar(255); not null" json:"role"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
