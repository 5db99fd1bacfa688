package models

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsAdmin    bool      `json:"is_admin"`
	ProfilePic *string   `json:"profile_pic,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p Profile) Key() uuid.UUID {
	return p.ID
}

func (p Profile) Timestamp() time.Time {
	return p.CreatedAt
}

type WalletAddress struct {
	ID        int64      `json:"id"`
	Coin      Symbol     `json:"coin"`
	Network   Network    `json:"network"`
	Address   string     `json:"address"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
}

type UserActivity struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Event       string    `json:"event"`
	Description string    `json:"description"`
	IP          string    `json:"ip"`
	City        string    `json:"city"`
	Region      string    `json:"region"`
	Country     string    `json:"country"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a UserActivity) Key() int64 {
	return a.ID
}

func (a UserActivity) Timestamp() time.Time {
	return a.CreatedAt
}

// ActivityPage is one page of activity rows, newest first.
type ActivityPage struct {
	Activities  []UserActivity `json:"activities"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
}
