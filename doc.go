/*

Package ingestor is a small ETL framework that walks a directory of semi
structured files (JSON lines, CSV, SAS7BDAT, XLS), turns every record into
rows of fixed destination tables and commits them one file at a time.

Getting started

A Job ties a Transformer to a Sink. The Ingestor discovers the files, parses
them, calls the transformer for each raw record and commits the sink's batch
once per file. A failed file is rolled back and, with the default
ContinueOnError policy, reported in the Summary without stopping the run.

	var songs = &ingestor.Table{
		Name: "songs",
		Columns: []ingestor.Column{
			{Name: "song_id", Type: ingestor.TypeString},
			{Name: "title", Type: ingestor.TypeString},
			{Name: "duration", Type: ingestor.TypeFloat64},
		},
	}

	transformer := ingestor.TransformerFunc(func(_ context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
		return []ingestor.TargetRecord{
			songs.Record(r.Origin,
				ingestor.Null(r.Text("song_id")),
				ingestor.Null(r.Text("title")),
				ingestor.Null(r.Float("duration"))),
		}, nil
	})

	in, err := ingestor.New(ingestor.WithPrettyLogging(), ingestor.WithLogLevel("debug"))
	if err != nil {
		return err
	}

	summary, err := in.Run(ctx, &ingestor.Job{
		Name:        "songs",
		Formats:     []ingestor.Format{ingestor.FormatJSONLines},
		Transformer: transformer,
		Sink:        sink, // e.g. sqlsink.New(db, statements)
	}, "data/song_data")

Ready made sinks live under contrib/sinks and the Sparkify and immigration
pipelines under contrib/sparkify and contrib/immigration.

*/
package ingestor
