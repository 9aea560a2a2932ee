// Command vtecgen runs the VTEC engine over a JSON array of hazard events and
// prints the segmented products, VTEC strings and updated events.
//
// Usage:
//
//	vtecgen -events events.json -a data/vtec/vtecRecords.json \
//	  [-counters etnCounters.json] [-issue] [-class O] [-now 20260512_1800] \
//	  [-recommended recommended.json] \
//	  [-localization localization -site KOAX -user forecaster]
//
// With -recommended the events are first merged with the recommender output;
// the ids of events the merge deletes are printed under "merge". Without
// -issue the run is a preview and nothing is written.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/engine"
	"github.com/couchcryptid/storm-data-vtec/internal/hazard"
	"github.com/couchcryptid/storm-data-vtec/internal/ingest"
	"github.com/couchcryptid/storm-data-vtec/internal/localization"
	"github.com/couchcryptid/storm-data-vtec/internal/merger"
	"github.com/couchcryptid/storm-data-vtec/internal/observability"
	"github.com/couchcryptid/storm-data-vtec/internal/store"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

type output struct {
	*engine.Output
	Merge *merger.Result `json:"merge,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vtecgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	eventsFile := fs.String("events", "", "JSON array of hazard events (required)")
	recommendedFile := fs.String("recommended", "", "JSON array of recommended hazard events to merge first")
	recordsFile := fs.String("a", "", "VTEC records file (required)")
	countersFile := fs.String("counters", "", "ETN counter file (default etnCounters.json beside the records file)")
	issue := fs.Bool("issue", false, "advance ETN counters and persist the records")
	class := fs.String("class", vtec.ClassOperational, "product class: O, T, E or X")
	at := fs.String("now", "", "run time, RFC3339 or YYYYMMDD_HHMM (default now)")
	locRoot := fs.String("localization", "", "localization root for hazard type overrides")
	site := fs.String("site", sharedcfg.EnvOrDefault("VTEC_SITE_ID", "KOAX"), "site for localization lookups")
	user := fs.String("user", "", "user for localization lookups")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *eventsFile == "" || *recordsFile == "" {
		fs.Usage()
		return 1
	}

	logger := observability.NewLoggerTo(stderr,
		sharedcfg.EnvOrDefault("LOG_LEVEL", "info"), sharedcfg.EnvOrDefault("LOG_FORMAT", "text"))

	events, err := loadEvents(*eventsFile)
	if err != nil {
		fmt.Fprintf(stderr, "vtecgen: %v\n", err)
		return 1
	}

	clock := clockwork.NewRealClock()
	if *at != "" {
		t, err := parseTime(*at)
		if err != nil {
			fmt.Fprintf(stderr, "vtecgen: %v\n", err)
			return 1
		}
		clock = clockwork.NewFakeClockAt(t)
	}

	if *countersFile == "" {
		*countersFile = filepath.Join(filepath.Dir(*recordsFile), "etnCounters.json")
	}
	records := store.NewFileStore(*recordsFile, logger)
	opts := []engine.Option{
		engine.WithClock(clock),
		engine.WithClass(strings.ToUpper(*class)),
		engine.WithSink(ingest.New(records, logger)),
	}

	table := hazard.DefaultTable()
	if *locRoot != "" {
		loc, err := localization.NewStore(*locRoot, logger)
		if err != nil {
			fmt.Fprintf(stderr, "vtecgen: open localization: %v\n", err)
			return 1
		}
		var diags []domain.Diagnostic
		table, diags, err = loc.HazardTable(localization.Context{Site: strings.ToUpper(*site), User: *user})
		if err != nil {
			fmt.Fprintf(stderr, "vtecgen: hazard types: %v\n", err)
			return 1
		}
		for _, d := range diags {
			logger.Warn("hazard type override", "diagnostic", d.String())
		}
	}
	opts = append(opts, engine.WithTable(table))

	var merged *merger.Result
	if *recommendedFile != "" {
		recommended, err := loadEvents(*recommendedFile)
		if err != nil {
			fmt.Fprintf(stderr, "vtecgen: %v\n", err)
			return 1
		}
		res := merger.New(table, logger).Merge(events, recommended, clock.Now().UTC())
		merged, events = &res, res.Merged
	}

	e := engine.New(records, store.NewCounters(*countersFile), logger, opts...)
	out, err := e.Run(context.Background(), events, *issue)
	if err != nil {
		fmt.Fprintf(stderr, "vtecgen: %v\n", err)
		return 1
	}

	result := output{Output: out, Merge: merged}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "vtecgen: write output: %v\n", err)
		return 1
	}
	return 0
}

func loadEvents(path string) ([]hazard.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var events []hazard.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse events %s: %w", path, err)
	}
	return events, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("20060102_1504", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run time %q", s)
	}
	return t, nil
}
