// Package weatherfile parses historical weather observation files used by the
// offline batch verifier.
//
// The format is a header line followed by whitespace-separated rows:
//
//	date        city     condition
//	2023-04-16  Denver   hail
//	2023-04-16  Austin   clear
//
// City and condition are normalized to lowercase. Rows with fewer than three
// fields are skipped; extra fields are ignored.
package weatherfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
)

// ParseFile reads observations from a file on disk.
func ParseFile(path string) ([]domain.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads observations from r, skipping the header line.
func Parse(r io.Reader) ([]domain.Observation, error) {
	var out []domain.Observation

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 || line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		ts, err := time.Parse(time.DateOnly, fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse date %q: %w", lineNum, fields[0], err)
		}

		out = append(out, domain.Observation{
			City:      domain.NormalizeCity(fields[1]),
			Timestamp: ts.UTC(),
			Condition: domain.NormalizeCondition(fields[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
