// Package index keeps a full-text index of written notes for `notesync search`.
package index

import (
	"errors"
	"fmt"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"

	"github.com/mohammad-safakhou/notesync/models"
)

// Index is a bleve index of notes keyed by document id.
type Index struct {
	idx bleve.Index
}

// Hit is one search result.
type Hit struct {
	ID        string
	Title     string
	Date      string
	Group     string
	Path      string
	Score     float64
	Fragments []string
}

// Open opens the index at path, creating it when missing. An empty path
// gives an in-memory index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(noteMapping())
		if err != nil {
			return nil, err
		}
		return &Index{idx: idx}, nil
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, noteMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open search index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

func noteMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	note := bleve.NewDocumentMapping()
	note.AddFieldMappingsAt("title", text)
	note.AddFieldMappingsAt("transcript", text)
	note.AddFieldMappingsAt("participants", text)
	note.AddFieldMappingsAt("group", text)
	note.AddFieldMappingsAt("date", kw)
	note.AddFieldMappingsAt("path", kw)
	note.AddFieldMappingsAt("id", kw)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = note
	return m
}

// IndexNote adds or replaces the entry for note.ID.
func (i *Index) IndexNote(note models.IndexedNote) error {
	if note.ID == "" {
		return errors.New("index note: empty id")
	}
	return i.idx.Index(note.ID, note)
}

// Search runs a query-string query and returns at most limit hits, best first.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"title", "date", "group", "path"}
	req.Highlight = bleve.NewHighlight()
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{
			ID:    h.ID,
			Score: h.Score,
			Title: stringField(h.Fields, "title"),
			Date:  stringField(h.Fields, "date"),
			Group: stringField(h.Fields, "group"),
			Path:  stringField(h.Fields, "path"),
		}
		for _, frags := range h.Fragments {
			hit.Fragments = append(hit.Fragments, frags...)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count is the number of indexed notes.
func (i *Index) Count() (uint64, error) {
	return i.idx.DocCount()
}

// Close flushes and closes the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
