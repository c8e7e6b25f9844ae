package gsuite

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/livescribe/internal/remote"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// DocsStore appends "[HH:MM:SS] text" lines to the end of a document.
type DocsStore struct {
	svc        *docs.Service
	documentID string
	loc        *time.Location
}

func NewDocsStore(ctx context.Context, documentID string, loc *time.Location, opts ...option.ClientOption) (*DocsStore, error) {
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create docs service: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DocsStore{svc: svc, documentID: documentID, loc: loc}, nil
}

func (s *DocsStore) Name() string {
	return "docs"
}

func (s *DocsStore) Check(ctx context.Context) error {
	doc, err := s.svc.Documents.Get(s.documentID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if doc.Body == nil {
		return fmt.Errorf("document %s has no body", s.documentID)
	}
	return nil
}

func (s *DocsStore) Append(ctx context.Context, e remote.Entry) error {
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{
			{
				InsertText: &docs.InsertTextRequest{
					EndOfSegmentLocation: &docs.EndOfSegmentLocation{},
					Text:                 docsLine(e, s.loc),
				},
			},
		},
	}
	if _, err := s.svc.Documents.BatchUpdate(s.documentID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("append to document: %w", err)
	}
	return nil
}

func docsLine(e remote.Entry, loc *time.Location) string {
	return fmt.Sprintf("[%s] %s\n", e.TranscribedAt.In(loc).Format("15:04:05"), e.Text)
}
