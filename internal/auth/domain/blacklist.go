package domain

import "time"

type BlacklistEntry struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	Reason    string
	CreatedAt time.Time
}

type BlacklistStats struct {
	Total          int64
	Active         int64
	Logout         int64
	SecurityLogout int64
}

// UserMarkerJTI is the blacklist key that stands for every access token of a
// user issued at or before the marker's CreatedAt.
func UserMarkerJTI(userID string) string {
	return "user_" + userID + "_*"
}
