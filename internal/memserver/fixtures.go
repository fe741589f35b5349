package memserver

import (
	"fmt"
	"os"

	"github.com/hanpama/docdb/internal/codec"
)

// Fixture is the canned result of one query text. Whitespace runs in Query
// are insignificant.
type Fixture struct {
	Query string      `json:"query"`
	Rows  []codec.Raw `json:"rows"`
	// Limit, when positive, keeps only the first Limit rows. The full row
	// count is still reported as fullCount when asked for.
	Limit    int       `json:"limit,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type Warning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LoadFixtures reads a JSON array of fixtures from path.
func LoadFixtures(path string) ([]Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fs []Fixture
	if err := codec.JSON.Decode(b, &fs); err != nil {
		return nil, fmt.Errorf("memserver: fixtures %s: %w", path, err)
	}
	for i, f := range fs {
		if f.Query == "" {
			return nil, fmt.Errorf("memserver: fixtures %s: entry %d has no query", path, i)
		}
	}
	return fs, nil
}
