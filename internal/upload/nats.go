package upload

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/specialistvlad/graphjob/internal/graphobject"
)

var jsonAPI = sonic.ConfigStd

// DefaultSubjectPrefix is used when NATSOptions.SubjectPrefix is empty.
const DefaultSubjectPrefix = "graphjob.upload"

// Publisher is the subset of jetstream.JetStream the sink uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSink publishes each batch as one JetStream message on
// <prefix>.<jobID>.<collection>.
type NATSSink struct {
	js     Publisher
	conn   *nats.Conn
	prefix string
	jobID  string
}

// NATSOptions configures a NATSSink.
type NATSOptions struct {
	URL           string
	JobID         string
	SubjectPrefix string
}

// DialNATS connects to a NATS server and returns a JetStream sink.
func DialNATS(opts NATSOptions) (*NATSSink, error) {
	conn, err := nats.Connect(opts.URL, nats.Name("graphjob-upload"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", opts.URL, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	sink := NewNATSSink(js, opts)
	sink.conn = conn
	return sink, nil
}

// NewNATSSink wraps an existing publisher.
func NewNATSSink(js Publisher, opts NATSOptions) *NATSSink {
	prefix := opts.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{js: js, prefix: prefix, jobID: opts.JobID}
}

// Subject returns the subject a collection is published on.
func (s *NATSSink) Subject(collection string) string {
	if s.jobID == "" {
		return s.prefix + "." + collection
	}
	return s.prefix + "." + s.jobID + "." + collection
}

func (s *NATSSink) UploadEntities(ctx context.Context, entities []*graphobject.Entity) error {
	return s.publish(ctx, CollectionEntities, map[string]any{CollectionEntities: entities})
}

func (s *NATSSink) UploadRelationships(ctx context.Context, relationships []*graphobject.Relationship) error {
	return s.publish(ctx, CollectionRelationships, map[string]any{CollectionRelationships: relationships})
}

func (s *NATSSink) publish(ctx context.Context, collection string, body any) error {
	data, err := jsonAPI.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s batch: %w", collection, err)
	}
	if _, err := s.js.Publish(ctx, s.Subject(collection), data); err != nil {
		return fmt.Errorf("publishing %s batch: %w", collection, err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}
