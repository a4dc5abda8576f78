package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// record is one line of the knowledge base JSONL file.
type record struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Metadata struct {
		Topic      string          `json:"topic"`
		Lesson     json.RawMessage `json:"lesson"`
		Difficulty string          `json:"difficulty"`
		Keywords   json.RawMessage `json:"keywords"`
	} `json:"metadata"`
}

// IngestStats summarises an ingestion run.
type IngestStats struct {
	Lines      int
	Added      int
	Duplicates int
	Skipped    int
}

// IngestFile loads a JSONL knowledge base file into the index.
func (x *Index) IngestFile(ctx context.Context, path string) (IngestStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return IngestStats{}, fmt.Errorf("open knowledge file: %w", err)
	}
	defer f.Close()
	return x.Ingest(ctx, f)
}

// Ingest reads JSONL records of the form
// {"prompt": ..., "response": ..., "metadata": {"topic": ..., ...}}.
// Blank lines are ignored; malformed lines and records without a topic,
// prompt or response are logged and skipped.
func (x *Index) Ingest(ctx context.Context, r io.Reader) (IngestStats, error) {
	var stats IngestStats
	var docs []Document

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		stats.Lines++

		doc, err := parseRecord([]byte(line))
		if err != nil {
			stats.Skipped++
			x.log.Warn("skipping knowledge record", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read knowledge file: %w", err)
	}

	added, err := x.Add(ctx, docs)
	stats.Added = added
	stats.Duplicates = len(docs) - added
	if err != nil {
		return stats, err
	}
	x.log.Info("knowledge base ingested",
		zap.Int("lines", stats.Lines),
		zap.Int("added", stats.Added),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func parseRecord(line []byte) (Document, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Document{}, fmt.Errorf("invalid JSON: %w", err)
	}
	switch {
	case strings.TrimSpace(rec.Metadata.Topic) == "":
		return Document{}, fmt.Errorf("missing metadata.topic")
	case strings.TrimSpace(rec.Prompt) == "":
		return Document{}, fmt.Errorf("missing prompt")
	case strings.TrimSpace(rec.Response) == "":
		return Document{}, fmt.Errorf("missing response")
	}

	return Document{
		Topic:      strings.TrimSpace(rec.Metadata.Topic),
		Prompt:     rec.Prompt,
		Response:   rec.Response,
		Lesson:     scalarString(rec.Metadata.Lesson),
		Difficulty: strings.TrimSpace(rec.Metadata.Difficulty),
		Keywords:   keywordList(rec.Metadata.Keywords),
	}, nil
}

// scalarString accepts a JSON string or number.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// keywordList accepts a JSON array of strings or a comma separated string.
func keywordList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		list = strings.Split(s, ",")
	}
	out := list[:0]
	for _, k := range list {
		// Commas are the storage separator.
		k = strings.TrimSpace(strings.ReplaceAll(k, ",", " "))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
