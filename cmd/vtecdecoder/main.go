// Command vtecdecoder decodes one NWS text product into a VTEC record file.
//
// Usage:
//
//	vtecdecoder -f product.txt -a data/vtec/vtecRecords.json [-d] [-g] [-n] [-w KOAX] [-z 20260512_1900]
//
// -z takes an absolute time or a signed offset from now such as -3h or 90m.
// The site and office filter come from VTEC_SITE_ID and VTEC_OFFICE_FILTER;
// VTEC_LOCAL_ZONES limits -g notifications to the listed zones.
// The decoded product and merge result are printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-vtec/internal/config"
	"github.com/couchcryptid/storm-data-vtec/internal/decoder"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/ingest"
	"github.com/couchcryptid/storm-data-vtec/internal/observability"
	"github.com/couchcryptid/storm-data-vtec/internal/store"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// drtLayout is the AWIPS displaced real time form.
const drtLayout = "20060102_1504"

type output struct {
	Product *decoder.Product `json:"product"`
	Result  *ingest.Result   `json:"result"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vtecdecoder", flag.ContinueOnError)
	fs.SetOutput(stderr)
	productFile := fs.String("f", "", "product file to decode (required)")
	recordsFile := fs.String("a", "", "VTEC records file (required)")
	deleteInput := fs.Bool("d", false, "delete the product file after processing")
	notify := fs.Bool("g", false, "emit notifications for partner-issued records")
	noBackups := fs.Bool("n", false, "skip record file backups")
	wmoOffice := fs.String("w", "", "WMO office id (informational)")
	drt := fs.String("z", "", "displaced real time: RFC3339, YYYYMMDD_HHMM or an offset from now like -3h")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *productFile == "" || *recordsFile == "" {
		fs.Usage()
		return 1
	}

	logger := observability.NewLoggerTo(stderr,
		sharedcfg.EnvOrDefault("LOG_LEVEL", "info"), sharedcfg.EnvOrDefault("LOG_FORMAT", "text"))

	if *drt != "" {
		t, err := parseDRT(*drt, domain.Now())
		if err != nil {
			fmt.Fprintf(stderr, "vtecdecoder: %v\n", err)
			return 1
		}
		domain.SetClock(clockwork.NewFakeClockAt(t))
		defer domain.SetClock(nil)
		logger.Info("displaced real time", "now", t)
	}
	now := domain.Now()

	text, err := os.ReadFile(*productFile)
	if err != nil {
		fmt.Fprintf(stderr, "vtecdecoder: read product: %v\n", err)
		return 1
	}

	partners := vtec.DefaultPartners()
	site := strings.ToUpper(sharedcfg.EnvOrDefault("VTEC_SITE_ID", "KOAX"))
	var decOpts []decoder.Option
	if offices, all := config.ParseOffices(os.Getenv("VTEC_OFFICE_FILTER")); !all {
		decOpts = append(decOpts, decoder.WithOfficeFilter(decoder.NewOfficeFilter(site, partners, offices...)))
	}

	prod, err := decoder.New(logger, decOpts...).Decode(string(text), now)
	if err != nil {
		fmt.Fprintf(stderr, "vtecdecoder: decode %s: %v\n", *productFile, err)
		return 1
	}
	logger.Info("product decoded",
		"pil", prod.Header.PIL, "office", prod.Header.Office, "wmo_office", *wmoOffice,
		"segments", len(prod.Segments), "records", len(prod.Records))

	records := store.NewFileStore(*recordsFile, logger)
	var ingOpts []ingest.Option
	if !*noBackups {
		ingOpts = append(ingOpts, ingest.WithBackups(records, store.DefaultRetention))
	}
	if *notify {
		ingOpts = append(ingOpts, ingest.WithPartnerNotifications(partners),
			ingest.WithLocalZones(config.ParseList(os.Getenv("VTEC_LOCAL_ZONES"))))
	}
	res, err := ingest.New(records, logger, ingOpts...).Merge(context.Background(), prod.Records, now)
	if err != nil {
		fmt.Fprintf(stderr, "vtecdecoder: merge: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{Product: prod, Result: res}); err != nil {
		fmt.Fprintf(stderr, "vtecdecoder: write result: %v\n", err)
		return 1
	}

	if *deleteInput {
		if err := os.Remove(*productFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not delete product file", "file", *productFile, "error", err)
		}
	}
	return 0
}

// parseDRT reads an absolute displaced real time or an offset applied to now.
func parseDRT(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(drtLayout, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid displaced real time %q", s)
}
