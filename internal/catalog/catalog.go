// Package catalog provides the read-only offer portfolio used to resolve
// offer ids found in the transcript.
package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/pkg/types"
)

// Catalog maps offer ids to portfolio entries. It is immutable after
// construction and safe for concurrent readers.
type Catalog struct {
	offers map[string]types.Offer
}

// New builds a catalog from portfolio entries. Duplicate ids are rejected.
func New(offers []types.Offer) (*Catalog, error) {
	c := &Catalog{offers: make(map[string]types.Offer, len(offers))}
	for _, o := range offers {
		if o.ID == "" {
			return nil, perrors.NewValidationError(perrors.CodeMissingField, "catalog: offer without id")
		}
		if _, err := types.ParseOfferType(string(o.Type)); err != nil {
			return nil, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
				fmt.Sprintf("catalog: offer %s", o.ID), err)
		}
		if o.DurationDays < 0 {
			return nil, perrors.NewValidationError(perrors.CodeMalformedRecord,
				fmt.Sprintf("catalog: offer %s has negative duration %d", o.ID, o.DurationDays))
		}
		if _, dup := c.offers[o.ID]; dup {
			return nil, perrors.NewValidationError(perrors.CodeDuplicateOffer,
				fmt.Sprintf("catalog: duplicate offer id %s", o.ID))
		}
		c.offers[o.ID] = o
	}
	return c, nil
}

// Load reads a portfolio in JSON-lines form, one offer per line.
func Load(r io.Reader) (*Catalog, error) {
	var offers []types.Offer

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var o types.Offer
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
				fmt.Sprintf("catalog: portfolio line %d", line), err)
		}
		offers = append(offers, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to read portfolio: %w", err)
	}

	return New(offers)
}

// Lookup returns the offer for id, or an UNKNOWN_OFFER validation error.
func (c *Catalog) Lookup(id string) (types.Offer, error) {
	o, ok := c.offers[id]
	if !ok {
		return types.Offer{}, perrors.NewValidationError(perrors.CodeUnknownOffer,
			fmt.Sprintf("offer %s is not in the portfolio", id))
	}
	return o, nil
}

// Len returns the number of offers.
func (c *Catalog) Len() int {
	return len(c.offers)
}

// IDs returns all offer ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.offers))
	for id := range c.offers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountByType returns how many portfolio offers exist per type.
func (c *Catalog) CountByType() map[types.OfferType]int {
	counts := make(map[types.OfferType]int, 3)
	for _, o := range c.offers {
		counts[o.Type]++
	}
	return counts
}
