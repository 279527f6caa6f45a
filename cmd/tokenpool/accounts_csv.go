package main

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/goliatone/go-tokenpool/core"
)

// readAccountsCSV reads email,password rows. A first row whose first column
// is "email" is treated as a header. Rows with an empty email are skipped and
// extra columns are ignored.
func readAccountsCSV(r io.Reader) ([]core.NewAccountInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var inputs []core.NewAccountInput
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewBadInputError("import: %v", err)
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(record[0]), "email") {
				continue
			}
		}
		email := strings.TrimSpace(record[0])
		if email == "" {
			continue
		}
		input := core.NewAccountInput{Email: email}
		if len(record) > 1 {
			input.Password = record[1]
		}
		inputs = append(inputs, input)
	}
	if len(inputs) == 0 {
		return nil, core.NewBadInputError("import: no accounts found")
	}
	return inputs, nil
}
