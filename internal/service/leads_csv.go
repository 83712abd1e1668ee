package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/octobees/lead-capture/internal/entity"
)

// CSVTimestampLayout formats timestamps in exports.
const CSVTimestampLayout = "2006-01-02 15:04:05"

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// CSVColumns is the export header, also accepted by ImportCSV.
var CSVColumns = []string{"id", "name", "email", "phone", "company", "network", "message", "status", "timestamp", "updated_at"}

var requiredCSVHeaders = []string{"name", "email", "phone"}

// CSVValidationError indicates that the provided CSV payload is invalid.
type CSVValidationError struct {
	Message string
}

// Error implements the error interface.
func (e CSVValidationError) Error() string {
	return e.Message
}

// ImportSummary reports how many rows were stored or rejected.
type ImportSummary struct {
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Total    int           `json:"total"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportError describes a rejected row.
type ImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

const maxImportErrors = 20

// WriteLeadsCSV writes leads with CSVColumns as header. Timestamps are rendered in loc.
func WriteLeadsCSV(w io.Writer, leads []entity.Lead, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, lead := range leads {
		updated := ""
		if lead.UpdatedAt != nil {
			updated = lead.UpdatedAt.In(loc).Format(CSVTimestampLayout)
		}
		row := []string{
			lead.ID,
			lead.Name,
			lead.Email,
			lead.Phone,
			lead.Company,
			lead.Network,
			lead.Message,
			lead.Status,
			lead.Timestamp.In(loc).Format(CSVTimestampLayout),
			updated,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteLeadsJSON writes leads as an indented JSON array.
func WriteLeadsJSON(w io.Writer, leads []entity.Lead) error {
	if leads == nil {
		leads = []entity.Lead{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(leads)
}

// ImportCSV stores each valid row as a new lead. Rows failing validation are skipped and
// reported; a missing required column rejects the whole file.
func (s *LeadService) ImportCSV(ctx context.Context, r io.Reader) (ImportSummary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportSummary{}, CSVValidationError{Message: "csv file is empty"}
		}
		return ImportSummary{}, fmt.Errorf("read csv header: %w", err)
	}

	index, err := buildHeaderIndex(header)
	if err != nil {
		return ImportSummary{}, err
	}

	var (
		summary ImportSummary
		rowNum  = 1
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("read csv row: %w", err)
		}
		rowNum++
		summary.Total++

		lead, err := s.leadFromRow(ctx, row, index)
		if err != nil {
			summary.Skipped++
			if len(summary.Errors) < maxImportErrors {
				summary.Errors = append(summary.Errors, ImportError{Row: rowNum, Message: err.Error()})
			}
			continue
		}

		if _, err := s.repo.Insert(ctx, lead); err != nil {
			return summary, s.backendError("import", err)
		}
		summary.Inserted++
	}

	s.opts.logger.WithField("inserted", summary.Inserted).WithField("skipped", summary.Skipped).Info("lead csv imported")
	return summary, nil
}

func (s *LeadService) leadFromRow(ctx context.Context, row []string, index map[string]int) (*entity.Lead, error) {
	clean, err := s.validator.Lead(ctx, LeadInput{
		Name:    column(row, index, "name"),
		Email:   column(row, index, "email"),
		Phone:   column(row, index, "phone"),
		Company: column(row, index, "company"),
		Network: column(row, index, "network"),
		Message: column(row, index, "message"),
	}, false)
	if err != nil {
		return nil, err
	}

	status := strings.ToLower(column(row, index, "status"))
	if status == "" {
		status = entity.LeadStatusNew
	}
	if !entity.IsValidLeadStatus(status) {
		return nil, ErrInvalidStatus
	}

	timestamp := s.opts.now().UTC()
	if raw := column(row, index, "timestamp"); raw != "" {
		parsed, err := parseCSVTime(raw, s.opts.location)
		if err != nil {
			return nil, invalid("timestamp", "timestamp must be YYYY-MM-DD HH:MM:SS or RFC 3339")
		}
		timestamp = parsed.UTC()
	}

	return &entity.Lead{
		Name:      clean.Name,
		Email:     clean.Email,
		Phone:     clean.Phone,
		Company:   clean.Company,
		Network:   clean.Network,
		Message:   clean.Message,
		Status:    status,
		Timestamp: timestamp,
	}, nil
}

func buildHeaderIndex(header []string) (map[string]int, error) {
	index := make(map[string]int)
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	missing := make([]string, 0)
	for _, required := range requiredCSVHeaders {
		if _, ok := index[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, CSVValidationError{Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))}
	}
	return index, nil
}

func column(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseCSVTime(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(CSVTimestampLayout, raw, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
