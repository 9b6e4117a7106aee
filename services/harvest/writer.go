package harvest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"threadharvest/lib/scrapers/reddit"
)

var csvHeader = []string{
	"id", "title", "subreddit", "score", "num_comments",
	"created_utc", "permalink", "selftext",
}

// ExportFiles writes a timestamped csv/json pair for one run under dir.
// The csv is the flat spreadsheet view without comments, the json file
// carries the complete records.
func ExportFiles(dir string, records []reddit.ThreadRecord, stamp time.Time) (csvPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	suffix := stamp.UTC().Format("20060102_150405")
	csvPath = filepath.Join(dir, fmt.Sprintf("reddit_threads_%s.csv", suffix))
	jsonPath = filepath.Join(dir, fmt.Sprintf("reddit_threads_%s.json", suffix))

	if err := writeCsv(csvPath, records); err != nil {
		return "", "", err
	}
	if err := writeJson(jsonPath, records); err != nil {
		return "", "", err
	}
	return csvPath, jsonPath, nil
}

func writeCsv(path string, records []reddit.ThreadRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Id,
			rec.Title,
			rec.Subreddit,
			strconv.Itoa(rec.Score),
			strconv.Itoa(rec.NumComments),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Permalink,
			rec.Selftext,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJson(path string, records []reddit.ThreadRecord) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
