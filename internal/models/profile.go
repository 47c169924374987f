package models

import "time"

// Profile is the durable cross-round record for one identity.
type Profile struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Names       []NameChange `json:"names"`
	AccessGroup string       `json:"access_group"`
	Matches     int64        `json:"matches"`
	Wins        int64        `json:"wins"`
	Losses      int64        `json:"losses"`
	Draws       int64        `json:"draws"`
	Kills       int64        `json:"kills"`
	Deaths      int64        `json:"deaths"`
	Assists     int64        `json:"assists"`
	ShotsFired  int64        `json:"shots_fired"`
	ShotsHit    int64        `json:"shots_hit"`
	Accuracy    float64      `json:"accuracy"`
	Rating      int          `json:"rating"`
	Experience  int64        `json:"experience"`
	Level       int          `json:"level"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NameChange records a name the identity played under.
type NameChange struct {
	Name   string    `json:"name"`
	SeenAt time.Time `json:"seen_at"`
}
