// Package index holds the parsed, read-only search index: the inverted index
// (term -> postings) and the URL table (document id -> metadata).
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
)

// Resource keys under which the index files are cached.
const (
	KeyIndex = config.ResourceIndex
	KeyURLs  = config.ResourceURLs
)

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     string
	Frequency int
}

// UnmarshalJSON reads the [docId, frequency] pair form. docId may be a JSON
// number or string.
func (p *Posting) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("posting: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("posting: want [docId, frequency], got %d elements", len(pair))
	}
	id, err := parseDocID(pair[0])
	if err != nil {
		return err
	}
	var freq int
	if err := json.Unmarshal(pair[1], &freq); err != nil {
		return fmt.Errorf("posting %s: frequency: %w", id, err)
	}
	if freq <= 0 {
		return fmt.Errorf("posting %s: frequency %d is not positive", id, freq)
	}
	p.DocID, p.Frequency = id, freq
	return nil
}

func parseDocID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("posting: document id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("posting: document id %s is neither number nor string", raw)
	}
	return n.String(), nil
}

// Description is the text a result summary is built from. Kind is "meta"
// for an author-written description; anything else is page body text.
type Description struct {
	Kind string
	Text string
}

// IsMeta reports whether the description is used verbatim.
func (d Description) IsMeta() bool { return d.Kind == "meta" }

// Document is one URL table row.
type Document struct {
	URL         string
	Title       string
	Description Description
	Length      int
}

// UnmarshalJSON reads the [url, title, [kind, text], length] row form. A
// null description text reads as "".
func (d *Document) UnmarshalJSON(data []byte) error {
	var row []json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	if len(row) < 3 {
		return fmt.Errorf("document: want [url, title, description, length], got %d elements", len(row))
	}
	var doc Document
	if err := json.Unmarshal(row[0], &doc.URL); err != nil {
		return fmt.Errorf("document url: %w", err)
	}
	if err := json.Unmarshal(row[1], &doc.Title); err != nil {
		return fmt.Errorf("document %s title: %w", doc.URL, err)
	}
	var desc []*string
	if err := json.Unmarshal(row[2], &desc); err != nil || len(desc) != 2 {
		return fmt.Errorf("document %s: description must be [kind, text]", doc.URL)
	}
	if desc[0] != nil {
		doc.Description.Kind = *desc[0]
	}
	if desc[1] != nil {
		doc.Description.Text = *desc[1]
	}
	if len(row) > 3 {
		var length float64
		if err := json.Unmarshal(row[3], &length); err != nil {
			return fmt.Errorf("document %s length: %w", doc.URL, err)
		}
		doc.Length = int(length)
	}
	*d = doc
	return nil
}

// URLTable maps document ids to documents.
type URLTable map[string]Document

// UnmarshalJSON accepts the array form, where ids are positions, and the
// object form keyed by id.
func (t *URLTable) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var rows []Document
		if err := json.Unmarshal(data, &rows); err != nil {
			return err
		}
		table := make(URLTable, len(rows))
		for i, row := range rows {
			table[strconv.Itoa(i)] = row
		}
		*t = table
		return nil
	}
	var table map[string]Document
	if err := json.Unmarshal(data, &table); err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("url table is null")
	}
	*t = table
	return nil
}

// Snapshot is one consistent, immutable version of the index. Nothing
// mutates a Snapshot after Unpack returns it.
type Snapshot struct {
	Terms    map[string][]Posting
	URLs     URLTable
	LoadedAt time.Time
}

// Postings returns the postings for term in source order, nil if absent.
func (s *Snapshot) Postings(term string) []Posting {
	return s.Terms[term]
}

// Document resolves a document id.
func (s *Snapshot) Document(id string) (Document, bool) {
	d, ok := s.URLs[id]
	return d, ok
}
