package models

// MapInfo identifies a playable map.
type MapInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Nomination is a candidate map and the participants who voted for it.
type Nomination struct {
	Map     MapInfo  `json:"map"`
	Owner   string   `json:"owner"`
	Voters  []string `json:"voters"`
	Percent int      `json:"percent"`
}
