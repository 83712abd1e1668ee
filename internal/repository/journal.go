package repository

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Journal persists records as newline-delimited JSON. Reads tolerate the legacy
// single-array layout so older backups can be migrated.
//
// Bytes that Load could not decode are kept next to the journal before any rewrite.
// If that is impossible the journal stops writing.
type Journal[T any] struct {
	path     string
	writable bool
	logger   logrus.FieldLogger
	now      func() time.Time
}

// JournalLoad is the outcome of reading a journal file.
type JournalLoad[T any] struct {
	Records []T
	Skipped int
	// Legacy is true when the file was a decodable single JSON array rather than NDJSON.
	Legacy bool
	// Preserved is where the original bytes were kept when some of them could not be read.
	Preserved string
}

// NewJournal builds a journal for path. Writes are no-ops unless writable is set.
func NewJournal[T any](path string, writable bool, logger logrus.FieldLogger) *Journal[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Journal[T]{path: path, writable: writable && path != "", logger: logger, now: time.Now}
}

// Path returns the backing file path.
func (j *Journal[T]) Path() string { return j.path }

// Writable reports whether Append and Rewrite touch disk.
func (j *Journal[T]) Writable() bool { return j.writable }

// Load reads every record. A missing file yields an empty result; malformed
// entries are logged and skipped.
func (j *Journal[T]) Load() (JournalLoad[T], error) {
	var out JournalLoad[T]
	if j.path == "" {
		return out, nil
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		j.disable("backup file unreadable")
		return out, fmt.Errorf("read journal %s: %w", j.path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return out, nil
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			j.logger.WithError(err).WithField("path", j.path).Warn("skipping unreadable legacy backup file")
			out.Skipped++
			out.Preserved = j.moveAside()
			return out, nil
		}
		out.Legacy = true
		for i, item := range raw {
			var rec T
			if err := json.Unmarshal(item, &rec); err != nil {
				j.logger.WithError(err).WithFields(logrus.Fields{"path": j.path, "index": i}).Warn("skipping malformed backup entry")
				out.Skipped++
				continue
			}
			out.Records = append(out.Records, rec)
		}
		if out.Skipped > 0 {
			out.Preserved = j.copyAside(data)
		}
		return out, nil
	}

	reader := bufio.NewReader(bytes.NewReader(data))
	line := 0
	for {
		chunk, readErr := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			line++
			if text := bytes.TrimSpace(chunk); len(text) > 0 {
				var rec T
				if err := json.Unmarshal(text, &rec); err != nil {
					j.logger.WithError(err).WithFields(logrus.Fields{"path": j.path, "line": line}).Warn("skipping malformed backup line")
					out.Skipped++
				} else {
					out.Records = append(out.Records, rec)
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	if out.Skipped > 0 {
		out.Preserved = j.copyAside(data)
	}

	return out, nil
}

func (j *Journal[T]) asidePath() string {
	return j.path + ".corrupt-" + j.now().UTC().Format("20060102T150405")
}

// moveAside renames the journal so new appends start a fresh file.
func (j *Journal[T]) moveAside() string {
	if !j.writable {
		return ""
	}
	dst := j.asidePath()
	if err := os.Rename(j.path, dst); err != nil {
		j.logger.WithError(err).WithField("path", j.path).Error("failed to move unreadable backup aside")
		j.disable("unreadable backup could not be moved aside")
		return ""
	}
	j.logger.WithFields(logrus.Fields{"path": j.path, "preserved": dst}).Warn("unreadable backup moved aside")
	return dst
}

// copyAside keeps the original bytes before a rewrite drops the malformed parts.
func (j *Journal[T]) copyAside(data []byte) string {
	if !j.writable {
		return ""
	}
	dst := j.asidePath()
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		j.logger.WithError(err).WithField("path", j.path).Error("failed to copy damaged backup aside")
		j.disable("damaged backup could not be copied aside")
		return ""
	}
	j.logger.WithFields(logrus.Fields{"path": j.path, "preserved": dst}).Warn("damaged backup copied aside")
	return dst
}

func (j *Journal[T]) disable(reason string) {
	if j.writable {
		j.logger.WithField("path", j.path).Errorf("%s, backup writes disabled", reason)
	}
	j.writable = false
}

// Append writes one record as a new line.
func (j *Journal[T]) Append(rec T) error {
	if !j.writable {
		return nil
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode journal record: %w", err)
	}
	if err := ensureDir(j.path); err != nil {
		return err
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", j.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal %s: %w", j.path, err)
	}
	return nil
}

// Rewrite replaces the file with recs, going through a temp file and rename.
func (j *Journal[T]) Rewrite(recs []T) error {
	if !j.writable {
		return nil
	}
	if err := ensureDir(j.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create journal temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	for _, rec := range recs {
		line, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("encode journal record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write journal temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close journal temp file: %w", err)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		return fmt.Errorf("replace journal %s: %w", j.path, err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	return nil
}
