package acl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jsamuelsen/quotes/internal/domain"
)

// maxPayloadBytes bounds how much of a response is decoded.
const maxPayloadBytes = 1 << 20

// zenQuote is the remote representation of a quote. It never leaves this package.
type zenQuote struct {
	Q string `json:"q"`
	A string `json:"a"`
	H string `json:"h,omitempty"`
}

// Translator converts one external DTO into a domain value.
type Translator[External any, Domain any] func(ext *External) (Domain, error)

// TranslateSlice applies translate to every item and stops at the first error.
func TranslateSlice[E any, D any](items []E, translate Translator[E, D]) ([]D, error) {
	result := make([]D, 0, len(items))

	for i := range items {
		translated, err := translate(&items[i])
		if err != nil {
			return nil, fmt.Errorf("translating item %d: %w", i, err)
		}

		result = append(result, translated)
	}

	return result, nil
}

// translateQuote maps a remote quote onto the domain. Text is trimmed but may
// end up empty; the quote service decides what to do with that.
func translateQuote(ext *zenQuote) (domain.Quote, error) {
	return domain.Quote{
		Text:   strings.TrimSpace(ext.Q),
		Author: strings.TrimSpace(ext.A),
	}, nil
}

// decodeQuotes reads a JSON array of quotes. A lone object is accepted as a
// one-element array.
func decodeQuotes(body io.Reader) ([]zenQuote, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	if len(raw) > maxPayloadBytes {
		return nil, errors.New("payload too large")
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}

	if raw[0] == '{' {
		var single zenQuote
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}

		return []zenQuote{single}, nil
	}

	var items []zenQuote
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	return items, nil
}
