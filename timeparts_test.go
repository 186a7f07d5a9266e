package ingestor

import (
	"testing"
	"time"
)

func TestExpandMillis(t *testing.T) {
	t.Parallel()

	p := ExpandMillis(1484188009000)

	want := TimeParts{
		Start:   time.Date(2017, 1, 12, 2, 26, 49, 0, time.UTC),
		Hour:    2,
		Day:     12,
		Week:    2,
		Month:   1,
		Year:    2017,
		Weekday: 3,
	}

	if !p.Start.Equal(want.Start) || p.Start.Location() != time.UTC {
		t.Errorf("Start should be %s, but %s", want.Start, p.Start)
	}
	p.Start = want.Start
	if p != want {
		t.Errorf("parts should be %+v, but %+v", want, p)
	}
}

func TestExpandSeconds(t *testing.T) {
	t.Parallel()

	p := ExpandSeconds(1484188009)
	if p.Year != 2017 || p.Hour != 2 || p.Weekday != 3 {
		t.Errorf("seconds and milliseconds should agree, but %+v", p)
	}

	sunday := Expand(time.Date(2018, 11, 4, 23, 0, 0, 0, time.FixedZone("JST", 9*60*60)))
	if sunday.Weekday != 6 || sunday.Hour != 14 {
		t.Errorf("weekday should be 6 and hour 14 in UTC, but %d and %d", sunday.Weekday, sunday.Hour)
	}
}
