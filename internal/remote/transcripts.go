package remote

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/mohammad-safakhou/notesync/models"
)

// FetchTranscript returns the ordered turns of a document's transcript. The
// service answers with either a bare list or an object wrapping it under
// "transcript". A body that holds no list yields nil turns and no error.
func (a *API) FetchTranscript(ctx context.Context, documentID string) ([]models.TranscriptTurn, error) {
	raw, err := a.exec.Execute(ctx, a.transcriptURL, map[string]string{"document_id": documentID})
	if err != nil {
		return nil, err
	}
	return DecodeTurns(raw), nil
}

// DecodeTurns extracts transcript turns from a raw transcript response.
// Elements that are not objects with a string text field are dropped.
func DecodeTurns(raw json.RawMessage) []models.TranscriptTurn {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '{' {
		var wrapper struct {
			Transcript json.RawMessage `json:"transcript"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil
		}
		raw = bytes.TrimSpace(wrapper.Transcript)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	turns := make([]models.TranscriptTurn, 0, len(items))
	for _, item := range items {
		var probe struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(item, &probe); err != nil || probe.Text == nil {
			continue
		}
		var turn models.TranscriptTurn
		if err := json.Unmarshal(item, &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}
