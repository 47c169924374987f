package models

import "time"

// RoundSummary is one archived round in a history listing.
type RoundSummary struct {
	ID        string    `json:"id"`
	Map       MapInfo   `json:"map"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Winner    Faction   `json:"winner,omitempty"`
	Draw      bool      `json:"draw"`
	Players   int       `json:"players"`
}

// PlayerHistory aggregates one identity's archived rounds in a window.
type PlayerHistory struct {
	PlayerID    string    `json:"player_id"`
	Since       time.Time `json:"since"`
	Rounds      int64     `json:"rounds"`
	Wins        int64     `json:"wins"`
	Losses      int64     `json:"losses"`
	Draws       int64     `json:"draws"`
	Kills       int64     `json:"kills"`
	Deaths      int64     `json:"deaths"`
	Assists     int64     `json:"assists"`
	FavoriteMap string    `json:"favorite_map,omitempty"`
}
