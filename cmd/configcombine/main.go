// Command configcombine composes a localization path across every scope and
// prints the result.
//
// Usage:
//
//	configcombine -path hazardTypes [-root localization] [-site KOAX] \
//	  [-workstation ws1] [-user forecaster] [-format json|xml] [-simplify] \
//	  [-scope site] [-layers]
//
// -scope prints one scope's file instead of the composition; -layers lists
// the files that contribute.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/localization"
	"github.com/couchcryptid/storm-data-vtec/internal/observability"
	"github.com/couchcryptid/storm-data-vtec/internal/xmltree"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("configcombine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", sharedcfg.EnvOrDefault("LOCALIZATION_ROOT", "localization"), "localization root directory")
	path := fs.String("path", "", "localization path, with or without extension (required)")
	site := fs.String("site", sharedcfg.EnvOrDefault("VTEC_SITE_ID", ""), "site id")
	workstation := fs.String("workstation", "", "workstation id")
	user := fs.String("user", "", "user id")
	format := fs.String("format", "json", "output format: json or xml")
	simplify := fs.Bool("simplify", false, "drop synthetic keys and collapse text-only mappings")
	scope := fs.String("scope", "", "print a single scope's file instead of the composition")
	layers := fs.Bool("layers", false, "list contributing files instead of printing the document")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *path == "" {
		fs.Usage()
		return 1
	}
	if *format != "json" && *format != "xml" {
		fmt.Fprintf(stderr, "configcombine: unknown format %q\n", *format)
		return 1
	}

	logger := observability.NewLoggerTo(stderr,
		sharedcfg.EnvOrDefault("LOG_LEVEL", "warn"), sharedcfg.EnvOrDefault("LOG_FORMAT", "text"))

	s, err := localization.NewStore(*root, logger)
	if err != nil {
		fmt.Fprintf(stderr, "configcombine: %v\n", err)
		return 1
	}
	c := localization.Context{Site: strings.ToUpper(*site), Workstation: *workstation, User: *user}

	var doc *confignode.Node
	switch {
	case *layers || *scope != "":
		ls, _, err := s.Layers(*path, c)
		if err != nil {
			fmt.Fprintf(stderr, "configcombine: %v\n", err)
			return 1
		}
		if *layers {
			for _, l := range ls {
				fmt.Fprintf(stdout, "%s\t%s\n", l.Scope, l.File)
			}
			return 0
		}
		want, err := localization.ParseScope(*scope)
		if err != nil {
			fmt.Fprintf(stderr, "configcombine: %v\n", err)
			return 1
		}
		for _, l := range ls {
			if l.Scope == want {
				doc = l.Doc
			}
		}
		if doc == nil {
			fmt.Fprintf(stderr, "configcombine: %s has no %s file\n", *path, want)
			return 1
		}
	default:
		doc, _, err = s.Compose(*path, c)
		if errors.Is(err, localization.ErrNotFound) {
			fmt.Fprintf(stderr, "configcombine: %s not found under %s\n", *path, *root)
			return 1
		}
		if err != nil {
			fmt.Fprintf(stderr, "configcombine: %v\n", err)
			return 1
		}
	}

	if *simplify {
		doc = xmltree.Simplify(doc)
	}
	if err := write(stdout, doc, *format, s.Hints()); err != nil {
		fmt.Fprintf(stderr, "configcombine: %v\n", err)
		return 1
	}
	return 0
}

func write(w io.Writer, doc *confignode.Node, format string, h xmltree.Hints) error {
	if format == "xml" {
		return xmltree.Encode(w, doc, h)
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}
