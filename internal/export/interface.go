// Package export writes saved transcripts to files.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/questchat/internal"
)

// ErrNilSession is returned by every exporter when given no session
var ErrNilSession = errors.New("nil session")

// Formats lists the canonical format names accepted by NewExporter
var Formats = []string{"jsonl", "md", "yaml", "json"}

// Exporter writes one session in a single format
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format. Names are case-insensitive
// and accept the aliases ndjson, markdown and yml.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jsonl", "ndjson":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// FileName is the file a session is exported to: session_<id>.<ext>
func FileName(exporter Exporter, session *internal.Session) string {
	return fmt.Sprintf("session_%s.%s", session.ID, exporter.Extension())
}

// WriteFile exports session into dir and returns the written path. Failures
// are *internal.ExportError; a partly written file is removed.
func WriteFile(exporter Exporter, session *internal.Session, dir string) (string, error) {
	if session == nil {
		return "", &internal.ExportError{Format: exporter.Extension(), Path: dir, Err: ErrNilSession}
	}
	path := filepath.Join(dir, FileName(exporter, session))
	fail := func(err error) (string, error) {
		return "", &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}

	file, err := os.Create(path)
	if err != nil {
		return fail(err)
	}
	if err := exporter.Export(session, file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fail(err)
	}
	if err := file.Close(); err != nil {
		return fail(err)
	}
	return path, nil
}
