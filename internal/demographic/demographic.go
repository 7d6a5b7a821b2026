// Package demographic loads and cleans the customer demographic dataset.
package demographic

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/pkg/types"
)

// SentinelAge marks placeholder profiles with no real demographic data.
const SentinelAge = 118

// memberDateLayout is the YYYYMMDD encoding of became_member_on.
const memberDateLayout = "20060102"

// RawProfile is a demographic record as exported by the loyalty platform.
type RawProfile struct {
	ID             string   `json:"id"`
	Age            int      `json:"age"`
	Gender         *string  `json:"gender"`
	Income         *float64 `json:"income"`
	BecameMemberOn int64    `json:"became_member_on"`
}

// Stats summarizes a cleaning pass.
type Stats struct {
	Read    int
	Dropped int
	Kept    int
}

// Clean drops placeholder rows (sentinel age, missing gender or income) and
// derives CustomerSince as whole days between each member date and the newest
// member date among the kept rows.
func Clean(raw []RawProfile) ([]types.Demographic, Stats, error) {
	stats := Stats{Read: len(raw)}

	type kept struct {
		rec    RawProfile
		joined time.Time
	}
	rows := make([]kept, 0, len(raw))
	var newest time.Time

	for _, r := range raw {
		if r.Age == SentinelAge || r.Gender == nil || r.Income == nil {
			stats.Dropped++
			continue
		}
		if r.ID == "" {
			return nil, stats, perrors.NewValidationError(perrors.CodeMissingField, "demographic: profile without id")
		}
		joined, err := time.Parse(memberDateLayout, fmt.Sprintf("%08d", r.BecameMemberOn))
		if err != nil {
			return nil, stats, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
				fmt.Sprintf("demographic: profile %s has invalid became_member_on %d", r.ID, r.BecameMemberOn), err)
		}
		if joined.After(newest) {
			newest = joined
		}
		rows = append(rows, kept{rec: r, joined: joined})
	}

	out := make([]types.Demographic, 0, len(rows))
	for _, k := range rows {
		out = append(out, types.Demographic{
			PersonID:      k.rec.ID,
			Age:           k.rec.Age,
			Gender:        *k.rec.Gender,
			Income:        *k.rec.Income,
			CustomerSince: int(newest.Sub(k.joined).Hours() / 24),
		})
	}
	stats.Kept = len(out)

	return out, stats, nil
}

// ReadProfiles reads a JSON-lines demographic dataset without cleaning it.
func ReadProfiles(r io.Reader) ([]RawProfile, error) {
	var out []RawProfile

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var p RawProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
				fmt.Sprintf("demographic: profile line %d", line), err)
		}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("demographic: failed to read profiles: %w", err)
	}
	return out, nil
}

// Index keys demographics by person id. Later duplicates win.
func Index(rows []types.Demographic) map[string]types.Demographic {
	idx := make(map[string]types.Demographic, len(rows))
	for _, d := range rows {
		idx[d.PersonID] = d
	}
	return idx
}
