package sparkify

import (
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor/contrib/sinks/sqlsink"
)

// Dialects.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite3"
)

// conflict clauses keep songs, artists and time rows already loaded and
// refresh the level of known users.
var postgresStatements = sqlsink.Statements{
	"songs": `INSERT INTO songs (song_id, title, artist_id, year, duration)
VALUES (:song_id, :title, :artist_id, :year, :duration)
ON CONFLICT (song_id) DO NOTHING`,
	"artists": `INSERT INTO artists (artist_id, name, location, latitude, longitude)
VALUES (:artist_id, :name, :location, :latitude, :longitude)
ON CONFLICT (artist_id) DO NOTHING`,
	"users": `INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES (:user_id, :first_name, :last_name, :gender, :level)
ON CONFLICT (user_id) DO UPDATE SET level = EXCLUDED.level`,
	"time": `INSERT INTO time (start_time, hour, day, week, month, year, weekday)
VALUES (:start_time, :hour, :day, :week, :month, :year, :weekday)
ON CONFLICT (start_time) DO NOTHING`,
	"songplays": `INSERT INTO songplays (start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
VALUES (:start_time, :user_id, :level, :song_id, :artist_id, :session_id, :location, :user_agent)`,
}

var mysqlStatements = sqlsink.Statements{
	"songs": `INSERT IGNORE INTO songs (song_id, title, artist_id, year, duration)
VALUES (:song_id, :title, :artist_id, :year, :duration)`,
	"artists": `INSERT IGNORE INTO artists (artist_id, name, location, latitude, longitude)
VALUES (:artist_id, :name, :location, :latitude, :longitude)`,
	"users": `INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES (:user_id, :first_name, :last_name, :gender, :level)
ON DUPLICATE KEY UPDATE level = VALUES(level)`,
	"time": `INSERT IGNORE INTO time (start_time, hour, day, week, month, year, weekday)
VALUES (:start_time, :hour, :day, :week, :month, :year, :weekday)`,
	"songplays": postgresStatements["songplays"],
}

// Statements returns the star schema inserts of a dialect.
func Statements(dialect string) (sqlsink.Statements, error) {
	switch dialect {
	case Postgres, SQLite:
		return postgresStatements, nil
	case MySQL:
		return mysqlStatements, nil
	default:
		return nil, xerrors.Errorf("unsupported dialect %q", dialect)
	}
}
