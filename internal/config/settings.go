package config

import "time"

// Settings are the engine constants derived once at bootstrap. They are passed
// by value so no component can change them after startup.
type Settings struct {
	RoundDuration   time.Duration
	PrepareDuration time.Duration
	VoteDuration    time.Duration
	MaxNominations  int
	AssistWindow    time.Duration

	WinRating          int
	LossRating         int
	MatchExperience    int64
	ExperiencePerLevel int64

	LoadAttempts int
	SaveAttempts int
}

// Default settings used by tests and by Configure for zero values.
var defaultSettings = Settings{
	RoundDuration:      10 * time.Minute,
	PrepareDuration:    15 * time.Second,
	VoteDuration:       30 * time.Second,
	MaxNominations:     5,
	AssistWindow:       15 * time.Second,
	WinRating:          25,
	LossRating:         20,
	MatchExperience:    100,
	ExperiencePerLevel: 1000,
	LoadAttempts:       3,
	SaveAttempts:       3,
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return defaultSettings
}

// Configure derives Settings from a loaded Config. Non-positive values fall back
// to the defaults.
func Configure(cfg *Config) Settings {
	s := defaultSettings
	if cfg == nil {
		return s
	}
	if cfg.RoundDuration > 0 {
		s.RoundDuration = cfg.RoundDuration
	}
	if cfg.PrepareDuration > 0 {
		s.PrepareDuration = cfg.PrepareDuration
	}
	if cfg.VoteDuration > 0 {
		s.VoteDuration = cfg.VoteDuration
	}
	if cfg.MaxNominations > 0 {
		s.MaxNominations = cfg.MaxNominations
	}
	if cfg.AssistWindow > 0 {
		s.AssistWindow = cfg.AssistWindow
	}
	if cfg.WinRating > 0 {
		s.WinRating = cfg.WinRating
	}
	if cfg.LossRating > 0 {
		s.LossRating = cfg.LossRating
	}
	if cfg.MatchExperience > 0 {
		s.MatchExperience = cfg.MatchExperience
	}
	if cfg.ExperiencePerLvl > 0 {
		s.ExperiencePerLevel = cfg.ExperiencePerLvl
	}
	if cfg.LoadAttempts > 0 {
		s.LoadAttempts = cfg.LoadAttempts
	}
	if cfg.SaveAttempts > 0 {
		s.SaveAttempts = cfg.SaveAttempts
	}
	return s
}
