package domain

import "time"

type ID string

type User struct {
	ID           ID
	Email        string
	PasswordHash string
	CompanyID    string
	CompanyName  string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

type Company struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type Summary struct {
	ID          ID
	Email       string
	CompanyID   string
	CompanyName string
	LastLoginAt *time.Time
	CreatedAt   time.Time
}

func (u User) Summary() Summary {
	return Summary{
		ID:          u.ID,
		Email:       u.Email,
		CompanyID:   u.CompanyID,
		CompanyName: u.CompanyName,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}
