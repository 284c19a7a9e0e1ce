package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/models"
)

type documentsPage struct {
	Docs      *[]models.Document `json:"docs"`
	Documents []models.Document  `json:"documents"`
}

func (p documentsPage) items() []models.Document {
	if p.Docs != nil {
		return *p.Docs
	}
	return p.Documents
}

// FetchSince pages through the documents endpoint and returns documents
// created or updated at or after since, in the order the service returned them.
//
// Paging stops at the first empty page or the first page with no recent
// documents; this relies on the service listing documents newest first.
func (a *API) FetchSince(ctx context.Context, since time.Time) ([]models.Document, error) {
	log := a.logger.WithField("since", since.Format("2006-01-02 15:04"))
	log.Info("fetching documents")

	var all []models.Document
	for offset := 0; ; offset += a.pageSize {
		docs, err := a.fetchPage(ctx, offset)
		if err != nil {
			if ctx.Err() == nil && a.policy.ShouldContinue(config.CategoryDocument) {
				log.WithError(err).WithField("offset", offset).Error("error fetching documents batch")
				break
			}
			return nil, err
		}
		if len(docs) == 0 {
			break
		}

		recent := 0
		for _, d := range docs {
			if IsRecent(d, since) {
				all = append(all, d)
				recent++
			}
		}
		if recent == 0 {
			break
		}
		if err := a.sleep(ctx, a.pageDelay); err != nil {
			return nil, err
		}
	}

	log.WithField("count", len(all)).Info("found documents to sync")
	return all, nil
}

func (a *API) fetchPage(ctx context.Context, offset int) ([]models.Document, error) {
	raw, err := a.exec.Execute(ctx, a.documentsURL, map[string]int{"limit": a.pageSize, "offset": offset})
	if err != nil {
		return nil, err
	}
	var page documentsPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode documents page at offset %d: %w", offset, err)
	}
	return page.items(), nil
}

// IsRecent reports whether d was created or updated at or after since. A
// document whose creation time cannot be parsed counts as recent; a missing
// or unparsable update time falls back to the creation time.
func IsRecent(d models.Document, since time.Time) bool {
	created, ok := d.CreatedAt()
	if !ok {
		return true
	}
	updated, ok := d.UpdatedAt()
	if !ok {
		updated = created
	}
	return !created.Before(since) || !updated.Before(since)
}
