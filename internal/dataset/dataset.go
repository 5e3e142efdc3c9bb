package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
)

// Sermon is one row of the corpus. Transcript text carries the YouTube
// auto-caption offset markers (e.g. "598s") inline.
type Sermon struct {
	ID         string
	Title      string
	Author     string
	Transcript string
	VideoID    string
}

// Reader yields the sermon corpus. Implementations are read-only and are
// consumed only while building the vectorstore.
type Reader interface {
	ReadSermons() ([]Sermon, error)
}

// CSVReader reads sermons from a CSV file with columns
// title, author, sermon and optionally video_id.
type CSVReader struct {
	Path string
}

func NewCSVReader(path string) *CSVReader {
	return &CSVReader{Path: path}
}

var musicMarkerRe = regexp.MustCompile(`(?i)\d+s\s+music\s+`)

func (r *CSVReader) ReadSermons() ([]Sermon, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", r.Path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"title", "author", "sermon"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("dataset is missing required column %q", required)
		}
	}
	videoCol, hasVideo := cols["video_id"]

	var sermons []Sermon
	rowNum := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row %d: %w", rowNum, err)
		}
		rowNum++

		transcript := CleanTranscript(field(record, cols["sermon"]))
		if transcript == "" {
			log.Printf("Skipping dataset row %d: empty transcript", rowNum)
			continue
		}

		s := Sermon{
			ID:         fmt.Sprintf("sermon-%d", len(sermons)),
			Title:      strings.TrimSpace(field(record, cols["title"])),
			Author:     strings.TrimSpace(field(record, cols["author"])),
			Transcript: transcript,
		}
		if hasVideo {
			s.VideoID = strings.TrimSpace(field(record, videoCol))
		}
		sermons = append(sermons, s)
	}

	return sermons, nil
}

// CleanTranscript strips the intro music artifacts the caption export leaves
// behind: a leading "music " token and any "<offset>s music " markers.
func CleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 6 && strings.EqualFold(text[:6], "music ") {
		text = text[6:]
	}
	text = musicMarkerRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
