package export

import (
	"io"

	"github.com/iksnae/questchat/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter writes a session as a YAML document
type YAMLExporter struct{}

// Export writes session to w. Close flushes the encoder, so its error counts.
func (e *YAMLExporter) Export(session *internal.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(session); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
