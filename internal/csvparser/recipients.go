package csvparser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Recipient is one row of a bulk-send CSV. Email comes from the "Email"
// column (case-insensitive); an optional "Subject" column overrides the
// request-level subject for that row. Every other column lands in Fields and
// is carried into the job's message data.
type Recipient struct {
	Email   string
	Subject string
	Fields  map[string]interface{}
}

// ParseRecipients reads a bulk-send CSV. The header row must contain an Email
// column; maxRows bounds the number of data rows (excluding the header).
// Malformed rows and rows without an email address are skipped.
func ParseRecipients(r io.Reader, maxRows int) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}

	emailIdx, subjectIdx := -1, -1
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		normalized[i] = h
		switch {
		case strings.EqualFold(h, "email"):
			emailIdx = i
		case strings.EqualFold(h, "subject"):
			subjectIdx = i
		}
	}
	if emailIdx == -1 {
		return nil, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	recipients := make([]Recipient, 0)
	for len(recipients) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(headers) {
			// skip malformed row
			continue
		}

		email := strings.TrimSpace(record[emailIdx])
		if email == "" {
			continue
		}

		rec := Recipient{
			Email:  email,
			Fields: make(map[string]interface{}, len(headers)-1),
		}
		for i := range record {
			if i == emailIdx {
				continue
			}
			if i == subjectIdx {
				rec.Subject = strings.TrimSpace(record[i])
				continue
			}
			if normalized[i] == "" {
				continue
			}
			rec.Fields[normalized[i]] = strings.TrimSpace(record[i])
		}

		recipients = append(recipients, rec)
	}

	if len(recipients) == 0 {
		return nil, errors.New("csv must contain at least one recipient row")
	}

	return recipients, nil
}
