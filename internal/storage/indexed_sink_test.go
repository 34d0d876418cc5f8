package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-scanner/internal/config"
	"resume-scanner/internal/parser"
	"resume-scanner/internal/storage"
	"resume-scanner/internal/types"
)

const testDim = 8

// fakeEmbedder 返回固定向量
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = vectorOf(testDim)
	}
	return out, nil
}

// fakeClaimer 内存版派生key占位
type fakeClaimer struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
}

func newFakeClaimer() *fakeClaimer {
	return &fakeClaimer{claimed: make(map[string]bool)}
}

func (f *fakeClaimer) ClaimKey(ctx context.Context, collection, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := storage.FormatClaimKey(collection, key)
	if f.claimed[k] {
		return false, nil
	}
	f.claimed[k] = true
	return true, nil
}

func (f *fakeClaimer) ReleaseKey(ctx context.Context, collection, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := storage.FormatClaimKey(collection, key)
	delete(f.claimed, k)
	f.released = append(f.released, k)
	return nil
}

func newIndexedSink(t *testing.T, opts ...storage.IndexedOption) (*storage.IndexedStoreSink, *fakeQdrant, *fakeEmbedder) {
	t.Helper()
	fake, server := newFakeQdrant(t, config.DefaultCollection, testDim, true)
	qdrant, err := storage.NewQdrant(&config.QdrantConfig{Endpoint: server.URL, Dimension: testDim})
	require.NoError(t, err)

	embedder := &fakeEmbedder{}
	sink, err := storage.NewIndexedStoreSink(qdrant, embedder, opts...)
	require.NoError(t, err)
	return sink, fake, embedder
}

func TestIndexedStoreSink_InsertThenSkip(t *testing.T) {
	sink, fake, embedder := newIndexedSink(t)
	ctx := context.Background()
	assert.Equal(t, "indexed", sink.Name())

	raw := "```json\n{\"name\":\"John Doe\",\"skills\":[\"Go\",\"Rust\"],\"education\":\"BS CS\"}\n```"
	first, err := sink.Upsert(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, first.Outcome)
	assert.Equal(t, "john_doe", first.Key)
	assert.Equal(t, "resumes2", first.Location)

	second, err := sink.Upsert(ctx, "{\"name\":\"JOHN DOE\",\"skills\":[\"Java\"]}")
	require.NoError(t, err, "重复key不是错误")
	assert.Equal(t, types.OutcomeSkipped, second.Outcome)
	assert.Equal(t, "john_doe", second.Key)

	assert.Equal(t, 1, fake.upsertCount(), "同一派生key只能写入一次")
	assert.Equal(t, 1, embedder.calls, "跳过时不应计算向量")

	payload := fake.points[storage.PointID("john_doe")]
	require.NotNil(t, payload)
	assert.Equal(t, "John Doe", payload["name"])
	assert.Equal(t, "john_doe", payload["resume_key"])
	doc, ok := payload["document"].(string)
	require.True(t, ok)
	record, err := parser.NormalizeResponse(doc)
	require.NoError(t, err, "document应是可重新解析的JSON")
	assert.Equal(t, []interface{}{"Go", "Rust"}, record["skills"])
}

func TestIndexedStoreSink_UnknownName(t *testing.T) {
	sink, fake, _ := newIndexedSink(t)

	result, err := sink.Persist(context.Background(), types.StructuredRecord{"skills": []interface{}{"Go"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "unknown", result.Key)
	assert.Equal(t, "Unknown", fake.points[storage.PointID("unknown")]["name"])
}

func TestIndexedStoreSink_MalformedRaw(t *testing.T) {
	sink, fake, _ := newIndexedSink(t)

	_, err := sink.Upsert(context.Background(), "I could not find a resume.")
	assert.ErrorIs(t, err, parser.ErrMalformedOutput)
	assert.Equal(t, 0, fake.upsertCount())
}

func TestIndexedStoreSink_ConcurrentSameKey(t *testing.T) {
	sink, fake, _ := newIndexedSink(t)

	var wg sync.WaitGroup
	outcomes := make([]types.PersistOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := sink.UpsertRecord(context.Background(), types.StructuredRecord{"name": "Jane Smith"})
			if assert.NoError(t, err) {
				outcomes[i] = result.Outcome
			}
		}(i)
	}
	wg.Wait()

	inserted := 0
	for _, o := range outcomes {
		if o == types.OutcomeInserted {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted, "并发写入同一key只能有一个成功")
	assert.Equal(t, 1, fake.upsertCount())
}

func TestIndexedStoreSink_ClaimLostSkips(t *testing.T) {
	claimer := newFakeClaimer()
	claimer.claimed[storage.FormatClaimKey("resumes2", "john_doe")] = true
	sink, fake, _ := newIndexedSink(t, storage.WithKeyClaimer(claimer))

	result, err := sink.UpsertRecord(context.Background(), types.StructuredRecord{"name": "John Doe"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSkipped, result.Outcome, "其他实例已占位时应跳过")
	assert.Equal(t, 0, fake.upsertCount())
}

func TestIndexedStoreSink_ReleasesClaimOnFailure(t *testing.T) {
	claimer := newFakeClaimer()
	sink, fake, _ := newIndexedSink(t, storage.WithKeyClaimer(claimer))
	fake.failUpsert = true

	_, err := sink.UpsertRecord(context.Background(), types.StructuredRecord{"name": "John Doe"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrSinkUnavailable)
	assert.Equal(t, []string{"app:resume:key_claim:resumes2:john_doe"}, claimer.released, "写入失败应释放占位")

	fake.failUpsert = false
	result, err := sink.UpsertRecord(context.Background(), types.StructuredRecord{"name": "John Doe"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, result.Outcome, "释放后可以重试")
}

func TestIndexedStoreSink_ClaimReleasedAfterInsert(t *testing.T) {
	claimer := newFakeClaimer()
	sink, fake, _ := newIndexedSink(t, storage.WithKeyClaimer(claimer))
	ctx := context.Background()

	result, err := sink.UpsertRecord(ctx, types.StructuredRecord{"name": "John Doe"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, result.Outcome)
	assert.Empty(t, claimer.claimed, "写入完成后不应保留占位")

	// 集合被清空后同一key可以重新写入，而不是因为残留占位被跳过
	fake.mu.Lock()
	delete(fake.points, storage.PointID("john_doe"))
	fake.mu.Unlock()

	result, err = sink.UpsertRecord(ctx, types.StructuredRecord{"name": "John Doe"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, result.Outcome)
	assert.Equal(t, 2, fake.upsertCount())
}

func TestIndexedStoreSink_EmbedFailure(t *testing.T) {
	sink, fake, embedder := newIndexedSink(t)
	embedder.err = errors.New("rate limited")

	_, err := sink.UpsertRecord(context.Background(), types.StructuredRecord{"name": "A"})
	assert.ErrorIs(t, err, storage.ErrSinkUnavailable)
	assert.Equal(t, 0, fake.upsertCount())
}

func TestIndexedStoreSink_Query(t *testing.T) {
	sink, _, _ := newIndexedSink(t)
	ctx := context.Background()

	_, err := sink.UpsertRecord(ctx, types.StructuredRecord{"name": "John Doe", "skills": []interface{}{"Go"}})
	require.NoError(t, err)

	results, err := sink.Query(ctx, "Go engineer", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "john_doe", results[0].Key)
	assert.Equal(t, "John Doe", results[0].Name)
	assert.Contains(t, results[0].Document, `"skills":["Go"]`)

	count, err := sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = sink.Query(ctx, "  ", 5)
	assert.Error(t, err)
}
