package worker

// ClickHouseSchema creates the archive tables processArchiveBatch writes to.
// cmd/migrate applies it statement by statement.
var ClickHouseSchema = []string{
	`CREATE DATABASE IF NOT EXISTS matchd`,
	`CREATE TABLE IF NOT EXISTS matchd.rounds (
		round_id   String,
		map_id     UInt32,
		map_name   LowCardinality(String),
		started_at DateTime64(3),
		ended_at   DateTime64(3),
		winner     LowCardinality(String),
		draw       Bool,
		players    UInt16
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(ended_at)
	ORDER BY (ended_at, round_id)`,
	`CREATE TABLE IF NOT EXISTS matchd.round_players (
		round_id        String,
		ended_at        DateTime64(3),
		player_id       String,
		player_name     String,
		faction         LowCardinality(String),
		outcome         LowCardinality(String),
		kills           UInt32,
		deaths          UInt32,
		assists         UInt32,
		shots_fired     UInt32,
		shots_hit       UInt32,
		accuracy        Float64,
		damage_dealt    Map(LowCardinality(String), Float64),
		damage_received Map(LowCardinality(String), Float64)
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(ended_at)
	ORDER BY (player_id, ended_at)`,
}
