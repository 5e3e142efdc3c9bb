package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cfcindia/sermon-rag/internal/store"
)

const (
	// previewMaxLength bounds the citation preview shown to users.
	previewMaxLength = 200
	// timestampSearchWindow is how far into a chunk we look for a timecode
	// marker. Markers come from the caption export and sit near the front.
	timestampSearchWindow = 100
)

// Citation is a user-facing attribution record for one retrieved chunk.
type Citation struct {
	Title            string `json:"title"`
	Author           string `json:"author"`
	VideoID          string `json:"video_id"`
	Timestamp        string `json:"timestamp"`
	TimestampDisplay string `json:"timestamp_display"`
	YouTubeLink      string `json:"youtube_link"`
	ContentPreview   string `json:"content_preview"`
}

func buildCitation(chunk store.SermonChunk) Citation {
	title := chunk.Title
	if title == "" {
		title = "Unknown Title"
	}
	author := chunk.Author
	if author == "" {
		author = "Unknown Author"
	}

	timestamp := extractTimestamp(chunk.Content)
	return Citation{
		Title:            title,
		Author:           author,
		VideoID:          chunk.VideoID,
		Timestamp:        timestamp,
		TimestampDisplay: formatTimestampDisplay(timestamp),
		YouTubeLink:      createYouTubeLink(chunk.VideoID, timestamp),
		ContentPreview:   cleanContentPreview(chunk.Content, previewMaxLength),
	}
}

var (
	secondsMarkerRe = regexp.MustCompile(`(\d+)s\b`)
	clockMarkerRe   = regexp.MustCompile(`(\d+):(\d+)`)
	hmsMarkerRe     = regexp.MustCompile(`(?:(\d+)h\s*)?(?:(\d+)m\s*)?(?:(\d+)s)?`)
	inlineMarkerRe  = regexp.MustCompile(`\b\d+s\b`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// extractTimestamp parses a timecode from the start of a chunk: plain
// seconds ("45s"), minutes:seconds ("2:30"), or hour/minute/second groups
// ("1h 30m"). Returns total seconds as a string, or the sentinel "0" when no
// marker is found. The marker conventions here are the only place that knows
// how timecodes are encoded in transcripts.
func extractTimestamp(content string) string {
	searchText := content
	if runes := []rune(searchText); len(runes) > timestampSearchWindow {
		searchText = string(runes[:timestampSearchWindow])
	}
	searchText = strings.ToLower(searchText)

	if m := secondsMarkerRe.FindStringSubmatch(searchText); m != nil {
		return m[1]
	}

	if m := clockMarkerRe.FindStringSubmatch(searchText); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		return strconv.Itoa(minutes*60 + seconds)
	}

	if m := hmsMarkerRe.FindStringSubmatch(searchText); m != nil && (m[1] != "" || m[2] != "" || m[3] != "") {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		if total := hours*3600 + minutes*60 + seconds; total > 0 {
			return strconv.Itoa(total)
		}
	}

	return "0"
}

// createYouTubeLink builds a watch URL for the chunk's video. The time-start
// parameter is added only for a real timestamp; a link never claims a
// timestamp it does not have.
func createYouTubeLink(videoID, timestamp string) string {
	if videoID == "" {
		return ""
	}
	if _, err := strconv.Atoi(timestamp); err != nil {
		timestamp = "0"
	}
	link := "https://www.youtube.com/watch?v=" + videoID
	if timestamp != "0" {
		link += "&t=" + timestamp + "s"
	}
	return link
}

// cleanContentPreview strips inline timecode markers and collapses
// whitespace, then truncates at a word boundary with an ellipsis.
func cleanContentPreview(content string, maxLength int) string {
	cleaned := inlineMarkerRe.ReplaceAllString(content, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) <= maxLength {
		return cleaned
	}
	truncated := string(runes[:maxLength])
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}

// formatTimestampDisplay renders seconds as M:SS, or H:MM:SS past an hour.
// Computed from the numeric value so hour boundaries format correctly.
func formatTimestampDisplay(timestamp string) string {
	totalSeconds, err := strconv.Atoi(timestamp)
	if err != nil || totalSeconds <= 0 {
		return "0:00"
	}

	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
