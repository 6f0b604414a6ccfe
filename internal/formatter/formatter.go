// package formatter renders processing job reports as plain text, Markdown, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

// Format is an export format for a job report.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// Formats lists the supported formats in help-text order.
var Formats = []Format{FormatText, FormatMarkdown, FormatCSV, FormatJSON}

// ParseFormat accepts a format name or a common alias such as "md" or "txt".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt", "plain":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension used when writing f to disk.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// Export renders job in the given format.
func Export(job *models.ProcessingJob, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		return ExportToText(job)
	case FormatMarkdown:
		return ExportToMarkdown(job)
	case FormatCSV:
		return ExportToCSV(job)
	case FormatJSON:
		return ExportToJSON(job)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
	}
}

// WriteExport renders job and writes it to path, defaulting to genrify_report{ext}.
// It returns the path written.
func WriteExport(job *models.ProcessingJob, f Format, path string) (string, error) {
	data, err := Export(job, f)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = "genrify_report" + f.Extension()
	}
	if err := shared.EnsureDir(path); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// row pairs a created playlist with the genre result recorded alongside it.
type row struct {
	playlist models.CreatedPlaylist
	result   *models.GenreResult
}

// rows pairs playlists and results by position. A playlist whose tracks could not be added has
// no result.
func rows(job *models.ProcessingJob) []row {
	out := make([]row, 0, len(job.CreatedPlaylists))
	for i, p := range job.CreatedPlaylists {
		r := row{playlist: p}
		if i < len(job.GenreResults) && p.Status == models.PlaylistComplete {
			r.result = &job.GenreResults[i]
		}
		out = append(out, r)
	}
	return out
}

// ExportToCSV writes one record per created playlist with columns:
// Genre, Playlist, Songs, Confidence, Status, URL
func ExportToCSV(job *models.ProcessingJob) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Genre", "Playlist", "Songs", "Confidence", "Status", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range rows(job) {
		genre, confidence := "", ""
		if r.result != nil {
			genre = r.result.Genre
			confidence = strconv.FormatFloat(r.result.Confidence, 'f', 1, 64)
		}
		record := []string{
			genre,
			r.playlist.Name,
			strconv.Itoa(r.playlist.SongCount),
			confidence,
			string(r.playlist.Status),
			r.playlist.URL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a summary, a playlist table and the songs of every genre.
func ExportToMarkdown(job *models.ProcessingJob) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Genre Playlists\n\n")
	fmt.Fprintf(&buf, "**Status**: %s (%d%%)\n", job.Status, job.Progress)
	if job.CurrentStep != "" {
		fmt.Fprintf(&buf, "**Step**: %s\n", job.CurrentStep)
	}
	fmt.Fprintf(&buf, "**Songs**: %d analyzed of %d liked\n", job.ProcessedSongs, job.TotalSongs)
	if d := Duration(job); d > 0 {
		fmt.Fprintf(&buf, "**Duration**: %s\n", d)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n", job.ErrorMessage)
	}

	if len(job.CreatedPlaylists) > 0 {
		buf.WriteString("\n## Playlists\n\n")
		buf.WriteString("| Playlist | Songs | Confidence | Status |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, r := range rows(job) {
			name := escapeCell(r.playlist.Name)
			if r.playlist.URL != "" {
				name = fmt.Sprintf("[%s](%s)", name, r.playlist.URL)
			}
			confidence := "-"
			if r.result != nil {
				confidence = fmt.Sprintf("%.1f%%", r.result.Confidence)
			}
			fmt.Fprintf(&buf, "| %s | %d | %s | %s |\n", name, r.playlist.SongCount, confidence, r.playlist.Status)
		}
	}

	for _, result := range job.GenreResults {
		fmt.Fprintf(&buf, "\n## %s\n\n", result.Genre)
		for i, song := range result.Songs {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, song)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders the report shown by `genrify process status`.
func ExportToText(job *models.ProcessingJob) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", StatusLine(job))
	if job.TotalSongs > 0 {
		fmt.Fprintf(&buf, "Songs: %d/%d\n", job.ProcessedSongs, job.TotalSongs)
	}
	if job.StartedAt != nil {
		fmt.Fprintf(&buf, "Started: %s\n", job.StartedAt.Local().Format(time.DateTime))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(&buf, "Completed: %s\n", job.CompletedAt.Local().Format(time.DateTime))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&buf, "Error: %s\n", job.ErrorMessage)
	}

	if len(job.CreatedPlaylists) > 0 {
		fmt.Fprintf(&buf, "\nPlaylists (%d):\n", len(job.CreatedPlaylists))
		for i, p := range job.CreatedPlaylists {
			mark := "✓"
			if p.Status != models.PlaylistComplete {
				mark = "✗"
			}
			fmt.Fprintf(&buf, "%d. %s %s (%d songs)\n", i+1, mark, p.Name, p.SongCount)
			if p.URL != "" {
				fmt.Fprintf(&buf, "   %s\n", p.URL)
			}
		}
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the job record as indented JSON.
func ExportToJSON(job *models.ProcessingJob) ([]byte, error) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return append(data, '\n'), nil
}

// StatusLine summarizes a job in one line, e.g. "[creating] 72% Creating playlist 1 of 3...".
func StatusLine(job *models.ProcessingJob) string {
	line := fmt.Sprintf("[%s] %d%%", job.Status, job.Progress)
	if job.CurrentStep != "" {
		line += " " + job.CurrentStep
	}
	return line
}

// Duration returns how long a finished run took, or zero when it has not finished.
func Duration(job *models.ProcessingJob) time.Duration {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return 0
	}
	return job.CompletedAt.Sub(*job.StartedAt).Round(time.Second)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
