package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/notesync/models"
)

// FetchGroups returns every group together with its embedded documents.
func (a *API) FetchGroups(ctx context.Context) ([]models.Group, error) {
	raw, err := a.exec.Execute(ctx, a.groupsURL, struct{}{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		DocumentLists []models.Group `json:"document_lists"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode document lists: %w", err)
	}
	a.logger.WithField("count", len(resp.DocumentLists)).Info("fetched document lists")
	return resp.DocumentLists, nil
}
