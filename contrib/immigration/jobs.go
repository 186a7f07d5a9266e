package immigration

import (
	"context"
	"io"
	"regexp"

	"golang.org/x/text/encoding/charmap"

	"go.nownabe.dev/ingestor"
)

// Jobs builds the temperature and immigration jobs sharing one index. The
// temperature job has to run first for the fact rows to find readings.
func Jobs(ports *ingestor.PortMap, sink ingestor.Sink, strict bool) (temperature, immigration *ingestor.Job) {
	index := NewTemperatureIndex()

	temperature = &ingestor.Job{
		Name:    "temperature",
		Formats: []ingestor.Format{ingestor.FormatCSV},
		Parser:  &ingestor.CSVParser{Required: TemperatureRequired, Strict: strict},
		Transformer: &TemperatureTransformer{
			Ports: ports,
			Index: index,
		},
		Sink: sink,
	}

	sas := &ingestor.SAS7BDATParser{Encoding: charmap.ISO8859_1, Required: ImmigrationRequired, Strict: strict}
	csv := &ingestor.CSVParser{Required: ImmigrationRequired, Strict: strict}

	immigration = &ingestor.Job{
		Name:    "immigration",
		Pattern: regexp.MustCompile(`i94`),
		Formats: []ingestor.Format{ingestor.FormatSAS7BDAT, ingestor.FormatCSV},
		Parser: ingestor.ParserFunc(func(ctx context.Context, f ingestor.SourceFile, r io.Reader, emit func(ingestor.RawRecord) error) error {
			if f.Format == ingestor.FormatSAS7BDAT {
				return sas.Parse(ctx, f, r, emit)
			}
			return csv.Parse(ctx, f, r, emit)
		}),
		Transformer: &ImmigrationTransformer{
			Ports: ports,
			Index: index,
		},
		Sink: sink,
	}

	return temperature, immigration
}
