package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/graphjob/internal/graphobject"
	"resty.dev/v3"
)

// HTTPSink posts batches to the synchronization API:
//
//	POST <endpoint>/persister/synchronization/jobs/<jobID>/entities
//	{"entities": [...]}
type HTTPSink struct {
	client *resty.Client
	jobID  string
}

// HTTPOptions configures an HTTPSink.
type HTTPOptions struct {
	Endpoint string
	JobID    string
	Token    string
	Timeout  time.Duration
	Retries  int
}

// NewHTTPSink returns a sink talking to opts.Endpoint.
func NewHTTPSink(opts HTTPOptions) (*HTTPSink, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("upload: endpoint is required")
	}
	if opts.JobID == "" {
		return nil, fmt.Errorf("upload: job id is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(opts.Endpoint).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetHeader("Content-Type", "application/json")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	return &HTTPSink{client: client, jobID: opts.JobID}, nil
}

func (s *HTTPSink) UploadEntities(ctx context.Context, entities []*graphobject.Entity) error {
	return s.post(ctx, CollectionEntities, map[string]any{CollectionEntities: entities})
}

func (s *HTTPSink) UploadRelationships(ctx context.Context, relationships []*graphobject.Relationship) error {
	return s.post(ctx, CollectionRelationships, map[string]any{CollectionRelationships: relationships})
}

func (s *HTTPSink) post(ctx context.Context, collection string, body any) error {
	data, err := jsonAPI.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s batch: %w", collection, err)
	}
	res, err := s.client.R().
		SetContext(ctx).
		SetBody(data).
		SetPathParams(map[string]string{"jobID": s.jobID, "collection": collection}).
		Post("/persister/synchronization/jobs/{jobID}/{collection}")
	if err != nil {
		return fmt.Errorf("posting %s: %w", collection, err)
	}
	if res.IsError() {
		return fmt.Errorf("posting %s: unexpected status %d: %s", collection, res.StatusCode(), res.String())
	}
	return nil
}

func (s *HTTPSink) Close() error {
	return s.client.Close()
}
