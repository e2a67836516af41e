package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Sample is one manifest row: the image id and its answer text. The
// image file is derived from the id, one PNG per sample.
type Sample struct {
	ID    string
	Label string
}

// InvalidManifestError reports a manifest file that cannot be used.
type InvalidManifestError struct {
	Path   string
	Reason string
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %s", e.Path, e.Reason)
}

// LoadManifest reads the id/answer CSV. The header must name the
// uniq_id and captcha_answer columns, in any order; extra columns are
// ignored. Row order is preserved.
func LoadManifest(path string) ([]Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &InvalidManifestError{Path: path, Reason: err.Error()}
	}
	defer file.Close()

	r := csv.NewReader(bufio.NewReader(file))
	r.FieldsPerRecord = -1 // row widths checked against the header below

	header, err := r.Read()
	if err == io.EOF {
		return nil, &InvalidManifestError{Path: path, Reason: "empty file"}
	}
	if err != nil {
		return nil, &InvalidManifestError{Path: path, Reason: err.Error()}
	}

	idCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "uniq_id":
			idCol = i
		case "captcha_answer":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, &InvalidManifestError{Path: path, Reason: "header must name uniq_id and captcha_answer columns"}
	}

	var samples []Sample
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &InvalidManifestError{Path: path, Reason: err.Error()}
		}

		blank := true
		for _, field := range record {
			if strings.TrimSpace(field) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}

		if len(record) <= idCol || len(record) <= labelCol {
			return nil, &InvalidManifestError{Path: path, Reason: fmt.Sprintf("line %d: row has %d fields", line, len(record))}
		}
		id := strings.TrimSpace(record[idCol])
		label := strings.TrimSpace(record[labelCol])
		if id == "" {
			return nil, &InvalidManifestError{Path: path, Reason: fmt.Sprintf("line %d: empty uniq_id", line)}
		}
		if label == "" {
			return nil, &InvalidManifestError{Path: path, Reason: fmt.Sprintf("line %d: empty captcha_answer", line)}
		}
		samples = append(samples, Sample{ID: id, Label: label})
	}
	return samples, nil
}
