package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/questchat/internal"
)

// JSONExporter writes a session as one indented JSON document
type JSONExporter struct{}

// Export writes session to w. HTML characters in tool inputs are left
// unescaped so the file reads like the transcript.
func (e *JSONExporter) Export(session *internal.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(session)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
