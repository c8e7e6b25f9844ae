package gsuite

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/foxseedlab/livescribe/internal/remote"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	sheetsHeaderRange = "A1:E1"
	sheetsAppendRange = "A:E"
	sheetsTimeLayout  = "2006-01-02 15:04:05"
)

var sheetsHeader = []any{"Timestamp", "Chunk", "Duration (s)", "Segments", "Transcript"}

// SheetsStore appends one row per segment to the first sheet of a
// spreadsheet, writing a header row first when the sheet is empty.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	loc           *time.Location

	mu         sync.Mutex
	headerDone bool
}

func NewSheetsStore(ctx context.Context, spreadsheetID string, loc *time.Location, opts ...option.ClientOption) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, loc: loc}, nil
}

func (s *SheetsStore) Name() string {
	return "sheets"
}

func (s *SheetsStore) Check(ctx context.Context) error {
	return s.ensureHeader(ctx)
}

func (s *SheetsStore) Append(ctx context.Context, e remote.Entry) error {
	if err := s.ensureHeader(ctx); err != nil {
		return err
	}
	return s.appendRow(ctx, sheetsRow(e, s.loc))
}

func (s *SheetsStore) ensureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headerDone {
		return nil
	}
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, sheetsHeaderRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet header: %w", err)
	}
	if len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		if err := s.appendRow(ctx, sheetsHeader); err != nil {
			return fmt.Errorf("write sheet header: %w", err)
		}
	}
	s.headerDone = true
	return nil
}

func (s *SheetsStore) appendRow(ctx context.Context, row []any) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, sheetsAppendRange, &sheets.ValueRange{
		Values: [][]any{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	return nil
}

func sheetsRow(e remote.Entry, loc *time.Location) []any {
	return []any{
		e.TranscribedAt.In(loc).Format(sheetsTimeLayout),
		e.Segment,
		strconv.FormatFloat(e.Duration.Seconds(), 'f', 1, 64),
		strconv.Itoa(e.Utterances),
		e.Text,
	}
}
