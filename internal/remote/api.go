package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/internal/clock"
	"github.com/mohammad-safakhou/notesync/internal/logging"
)

// Executor runs one logical request against the remote service.
type Executor interface {
	Execute(ctx context.Context, url string, payload any) (json.RawMessage, error)
}

// APIOptions configures the remote endpoints and paging.
type APIOptions struct {
	DocumentsURL  string
	GroupsURL     string
	TranscriptURL string
	PageSize      int
	PageDelay     time.Duration
	Policy        config.ErrorPolicy
	Logger        logrus.FieldLogger
	Sleep         func(ctx context.Context, d time.Duration) error
}

// API exposes the documents, groups and transcript endpoints.
type API struct {
	exec          Executor
	documentsURL  string
	groupsURL     string
	transcriptURL string
	pageSize      int
	pageDelay     time.Duration
	policy        config.ErrorPolicy
	logger        logrus.FieldLogger
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewAPI wires an API over exec.
func NewAPI(exec Executor, opts APIOptions) *API {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Policy == nil {
		opts.Policy = config.ContinueAll()
	}
	if opts.Sleep == nil {
		opts.Sleep = clock.Sleep
	}
	return &API{
		exec:          exec,
		documentsURL:  opts.DocumentsURL,
		groupsURL:     opts.GroupsURL,
		transcriptURL: opts.TranscriptURL,
		pageSize:      opts.PageSize,
		pageDelay:     opts.PageDelay,
		policy:        opts.Policy,
		logger:        logging.Component(opts.Logger, "api"),
		sleep:         opts.Sleep,
	}
}

// NewAPIFromConfig builds the client and API from application config.
func NewAPIFromConfig(cfg *config.Config, tokens TokenSource, logger logrus.FieldLogger) (*API, error) {
	docsURL, err := cfg.API.URL(config.EndpointDocuments)
	if err != nil {
		return nil, err
	}
	groupsURL, err := cfg.API.URL(config.EndpointDocumentLists)
	if err != nil {
		return nil, err
	}
	transcriptURL, err := cfg.API.URL(config.EndpointTranscript)
	if err != nil {
		return nil, err
	}
	client := NewClient(tokens, ClientOptions{
		Timeout:           cfg.API.Timeout,
		MaxRetries:        cfg.API.MaxRetries,
		BaseDelay:         cfg.ErrorHandling.RetryBaseDelay,
		MaxDelay:          cfg.ErrorHandling.RetryMaxDelay,
		ValidateResponses: cfg.Data.ValidateAPIResponses,
		Logger:            logger,
	})
	return NewAPI(client, APIOptions{
		DocumentsURL:  docsURL,
		GroupsURL:     groupsURL,
		TranscriptURL: transcriptURL,
		PageSize:      cfg.API.BatchSize,
		PageDelay:     cfg.API.RequestDelay,
		Policy:        cfg.ErrorHandling.Policy(),
		Logger:        logger,
	}), nil
}
