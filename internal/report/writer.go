package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Write encodes doc to w.
func Write(w io.Writer, doc *Document, format Format) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		data, err = yaml.Marshal(doc)
	case FormatJUnit:
		var body []byte
		body, err = xml.MarshalIndent(JUnit(doc), "", "  ")
		data = append([]byte(xml.Header), body...)
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode %s report: %w", format, err)
	}

	_, err = w.Write(data)
	return err
}

// WriteFile writes doc to path. An empty format is taken from the extension.
func WriteFile(path string, doc *Document, format Format) (err error) {
	if format == "" {
		format = FormatFromPath(path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
	}()

	return Write(f, doc, format)
}
