package leadsink

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/store"
)

type funcSink struct {
	name string
	fn   func(ctx context.Context, s model.Submission) error
}

func (f funcSink) Name() string { return f.name }

func (f funcSink) Record(ctx context.Context, s model.Submission) error { return f.fn(ctx, s) }

func submission(status model.SubmissionStatus) model.Submission {
	return model.Submission{
		ID:        "s1",
		FormID:    "talent-main",
		Kind:      model.FormTalent,
		Email:     "jane@acme.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Status:    status,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ok := funcSink{name: "ok", fn: func(context.Context, model.Submission) error {
		calls.Add(1)
		return nil
	}}
	bad := funcSink{name: "bad", fn: func(context.Context, model.Submission) error {
		calls.Add(1)
		return errors.New("down")
	}}

	f := New(0, ok, nil, bad, ok)
	require.Len(t, f.Sinks, 3)

	err := f.Record(context.Background(), submission(model.SubmissionSubmitted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leadsink: bad")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFanout_TimeoutBoundsEachSink(t *testing.T) {
	t.Parallel()
	slow := funcSink{name: "slow", fn: func(ctx context.Context, _ model.Submission) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	err := New(20*time.Millisecond, slow).Record(context.Background(), submission(model.SubmissionSubmitted))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFanout_NoSinks(t *testing.T) {
	t.Parallel()
	assert.NoError(t, New(0).Record(context.Background(), submission(model.SubmissionFailed)))
}

func TestStoreSink(t *testing.T) {
	t.Parallel()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	sink := Store{Store: st}
	assert.Equal(t, "store", sink.Name())
	require.NoError(t, sink.Record(context.Background(), submission(model.SubmissionSubmitted)))

	got, err := st.GetSubmission(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", got.Email)
}

type fakeSF struct {
	inserts atomic.Int32
}

func (f *fakeSF) Query(context.Context, string, any) error { return nil }

func (f *fakeSF) InsertOne(context.Context, string, map[string]any) (string, error) {
	f.inserts.Add(1)
	return "00Q1", nil
}

func (f *fakeSF) UpdateOne(context.Context, string, string, map[string]any) error { return nil }

func TestSalesforceSink_SkipsFailedSubmissions(t *testing.T) {
	t.Parallel()
	sf := &fakeSF{}
	sink := Salesforce{Client: sf}

	require.NoError(t, sink.Record(context.Background(), submission(model.SubmissionFailed)))
	assert.Equal(t, int32(0), sf.inserts.Load())

	require.NoError(t, sink.Record(context.Background(), submission(model.SubmissionSubmitted)))
	assert.Equal(t, int32(1), sf.inserts.Load())
}

type fakeNotion struct {
	created atomic.Int32
}

func (f *fakeNotion) QueryDatabase(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeNotion) CreatePage(context.Context, *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.created.Add(1)
	return &notionapi.Page{ID: "page-1"}, nil
}

func (f *fakeNotion) UpdatePage(context.Context, string, *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return &notionapi.Page{ID: "page-1"}, nil
}

func TestNotionSink(t *testing.T) {
	t.Parallel()
	n := &fakeNotion{}
	sink := Notion{Client: n, DatabaseID: "db"}
	assert.Equal(t, "notion", sink.Name())
	require.NoError(t, sink.Record(context.Background(), submission(model.SubmissionFailed)))
	assert.Equal(t, int32(1), n.created.Load())
}
