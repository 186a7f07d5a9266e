// Package sparkify holds the Sparkify music streaming pipelines: the song
// and log JSON files loaded into a relational star schema, and the event
// CSVs loaded into Cassandra query tables.
package sparkify

import "go.nownabe.dev/ingestor"

// Star schema.
var (
	Songs = &ingestor.Table{
		Name: "songs",
		Columns: []ingestor.Column{
			{Name: "song_id", Type: ingestor.TypeString},
			{Name: "title", Type: ingestor.TypeString},
			{Name: "artist_id", Type: ingestor.TypeString},
			{Name: "year", Type: ingestor.TypeInt64},
			{Name: "duration", Type: ingestor.TypeFloat64},
		},
		Key: []string{"song_id"},
	}

	Artists = &ingestor.Table{
		Name: "artists",
		Columns: []ingestor.Column{
			{Name: "artist_id", Type: ingestor.TypeString},
			{Name: "name", Type: ingestor.TypeString},
			{Name: "location", Type: ingestor.TypeString},
			{Name: "latitude", Type: ingestor.TypeFloat64},
			{Name: "longitude", Type: ingestor.TypeFloat64},
		},
		Key: []string{"artist_id"},
	}

	Users = &ingestor.Table{
		Name: "users",
		Columns: []ingestor.Column{
			{Name: "user_id", Type: ingestor.TypeInt64},
			{Name: "first_name", Type: ingestor.TypeString},
			{Name: "last_name", Type: ingestor.TypeString},
			{Name: "gender", Type: ingestor.TypeString},
			{Name: "level", Type: ingestor.TypeString},
		},
		Key: []string{"user_id"},
	}

	Time = &ingestor.Table{
		Name: "time",
		Columns: []ingestor.Column{
			{Name: "start_time", Type: ingestor.TypeTimestamp},
			{Name: "hour", Type: ingestor.TypeInt64},
			{Name: "day", Type: ingestor.TypeInt64},
			{Name: "week", Type: ingestor.TypeInt64},
			{Name: "month", Type: ingestor.TypeInt64},
			{Name: "year", Type: ingestor.TypeInt64},
			{Name: "weekday", Type: ingestor.TypeInt64},
		},
		Key: []string{"start_time"},
	}

	// Songplays has a serial key assigned by the database, so the same
	// event loaded twice is stored twice.
	Songplays = &ingestor.Table{
		Name: "songplays",
		Columns: []ingestor.Column{
			{Name: "start_time", Type: ingestor.TypeTimestamp},
			{Name: "user_id", Type: ingestor.TypeInt64},
			{Name: "level", Type: ingestor.TypeString},
			{Name: "song_id", Type: ingestor.TypeString},
			{Name: "artist_id", Type: ingestor.TypeString},
			{Name: "session_id", Type: ingestor.TypeInt64},
			{Name: "location", Type: ingestor.TypeString},
			{Name: "user_agent", Type: ingestor.TypeString},
		},
	}
)

// StarTables lists the star schema table names in load order.
var StarTables = []string{"songs", "artists", "users", "time", "songplays"}

// Cassandra query tables.
var (
	SongInSession = &ingestor.Table{
		Name: "song_in_session",
		Columns: []ingestor.Column{
			{Name: "session_id", Type: ingestor.TypeInt64},
			{Name: "item_in_session", Type: ingestor.TypeInt64},
			{Name: "artist", Type: ingestor.TypeString},
			{Name: "song", Type: ingestor.TypeString},
			{Name: "length", Type: ingestor.TypeFloat64},
		},
		Key: []string{"session_id", "item_in_session"},
	}

	ArtistInSession = &ingestor.Table{
		Name: "artist_in_session",
		Columns: []ingestor.Column{
			{Name: "user_id", Type: ingestor.TypeInt64},
			{Name: "session_id", Type: ingestor.TypeInt64},
			{Name: "artist", Type: ingestor.TypeString},
			{Name: "song", Type: ingestor.TypeString},
			{Name: "item_in_session", Type: ingestor.TypeInt64},
			{Name: "first_name", Type: ingestor.TypeString},
			{Name: "last_name", Type: ingestor.TypeString},
		},
		Key: []string{"user_id", "session_id", "item_in_session"},
	}

	UserAndSong = &ingestor.Table{
		Name: "user_and_song",
		Columns: []ingestor.Column{
			{Name: "song", Type: ingestor.TypeString},
			{Name: "user_id", Type: ingestor.TypeInt64},
			{Name: "first_name", Type: ingestor.TypeString},
			{Name: "last_name", Type: ingestor.TypeString},
		},
		Key: []string{"song", "user_id"},
	}
)

// EventTables lists the Cassandra table names.
var EventTables = []string{"song_in_session", "artist_in_session", "user_and_song"}
