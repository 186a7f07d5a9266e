package sparkify

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor/contrib/sinks/cqlsink"
)

var keyspacePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

var eventTableDDL = []string{
	`CREATE TABLE IF NOT EXISTS song_in_session (
    session_id int,
    item_in_session int,
    artist text,
    song text,
    length double,
    PRIMARY KEY (session_id, item_in_session))`,
	`CREATE TABLE IF NOT EXISTS artist_in_session (
    user_id int,
    session_id int,
    artist text,
    song text,
    item_in_session int,
    first_name text,
    last_name text,
    PRIMARY KEY ((user_id, session_id), item_in_session))`,
	`CREATE TABLE IF NOT EXISTS user_and_song (
    song text,
    user_id int,
    first_name text,
    last_name text,
    PRIMARY KEY (song, user_id))`,
}

// CreateKeyspace drops and recreates a keyspace with SimpleStrategy.
func CreateKeyspace(ctx context.Context, s cqlsink.Session, keyspace string, replicationFactor int) error {
	if !keyspacePattern.MatchString(keyspace) {
		return xerrors.Errorf("invalid keyspace name %q", keyspace)
	}
	if replicationFactor < 1 {
		return xerrors.Errorf("replication factor must be positive, got %d", replicationFactor)
	}

	if err := s.Exec(ctx, "DROP KEYSPACE IF EXISTS "+keyspace); err != nil {
		return xerrors.Errorf("failed to drop keyspace %s: %w", keyspace, err)
	}

	create := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		keyspace, replicationFactor)
	if err := s.Exec(ctx, create); err != nil {
		return xerrors.Errorf("failed to create keyspace %s: %w", keyspace, err)
	}

	log.Ctx(ctx).Info().Str("keyspace", keyspace).Msg("keyspace created")

	return nil
}

// CreateEventTables drops and recreates the query tables in the session's
// keyspace.
func CreateEventTables(ctx context.Context, s cqlsink.Session) error {
	l := log.Ctx(ctx)

	for _, t := range EventTables {
		if err := s.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return xerrors.Errorf("failed to drop %s: %w", t, err)
		}
	}
	l.Info().Msg("tables dropped")

	for _, ddl := range eventTableDDL {
		if err := s.Exec(ctx, ddl); err != nil {
			return xerrors.Errorf("failed to create table: %w", err)
		}
	}
	l.Info().Msg("tables created")

	return nil
}
