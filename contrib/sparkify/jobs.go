package sparkify

import "go.nownabe.dev/ingestor"

// Jobs builds the song and log jobs of the star schema. Songs must be loaded
// before logs. index may be nil when resolver does not depend on it.
func Jobs(sink ingestor.Sink, index *SongIndex, resolver SongResolver, strict bool) (songs, logs *ingestor.Job) {
	songs = &ingestor.Job{
		Name:        "songs",
		Formats:     []ingestor.Format{ingestor.FormatJSONLines},
		Parser:      &ingestor.JSONLinesParser{Required: SongRequired, Strict: strict},
		Transformer: &SongTransformer{Index: index},
		Sink:        sink,
	}

	logs = &ingestor.Job{
		Name:        "logs",
		Formats:     []ingestor.Format{ingestor.FormatJSONLines},
		Parser:      &ingestor.JSONLinesParser{Required: LogRequired, Strict: strict},
		Transformer: &LogTransformer{Resolver: resolver},
		Sink:        sink,
	}

	return songs, logs
}

// EventJob builds the job loading the consolidated event file.
func EventJob(sink ingestor.Sink) *ingestor.Job {
	return &ingestor.Job{
		Name:        "events",
		Formats:     []ingestor.Format{ingestor.FormatCSV},
		Parser:      EventParser{},
		Transformer: EventTransformer{},
		Sink:        sink,
	}
}
