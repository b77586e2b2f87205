package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered UUID, used for primary keys so index
// pages fill roughly sequentially.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
