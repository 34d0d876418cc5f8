package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-scanner/internal/storage"
	"resume-scanner/internal/types"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name   string
		record types.StructuredRecord
		want   string
	}{
		{"普通姓名", types.StructuredRecord{"name": "John Doe"}, "john_doe"},
		{"多个空格", types.StructuredRecord{"name": "Mary Ann  Smith"}, "mary_ann__smith"},
		{"缺少name", types.StructuredRecord{"skills": []interface{}{"Go"}}, "unknown"},
		{"name为空串", types.StructuredRecord{"name": ""}, "unknown"},
		{"name非字符串", types.StructuredRecord{"name": 7}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.DeriveKey(tt.record))
		})
	}
}

func TestFlatFileSink_AppendAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extracted_resumes.json")
	sink := storage.NewFlatFileSink(path)
	ctx := context.Background()

	assert.Equal(t, "flat", sink.Name())

	for i := 1; i <= 3; i++ {
		result, err := sink.Append(ctx, types.StructuredRecord{"name": fmt.Sprintf("Candidate %d", i)})
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeAppended, result.Outcome)
		assert.Equal(t, path, result.Location)
		assert.Equal(t, i, result.Count)
		assert.False(t, result.Recovered)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n    {"), "归档应使用4空格缩进")

	var archive []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &archive))
	require.Len(t, archive, 3)
	assert.Equal(t, "Candidate 1", archive[0]["name"], "追加顺序应被保留")
	assert.Equal(t, "Candidate 3", archive[2]["name"])

	latest, err := sink.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Candidate 3", latest["name"])
}

func TestFlatFileSink_PersistIgnoresRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	sink := storage.NewFlatFileSink(path)

	result, err := sink.Persist(context.Background(), types.StructuredRecord{"name": "John Doe"}, "not used")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAppended, result.Outcome)
	assert.Empty(t, result.Key)
}

func TestFlatFileSink_CorruptArchiveRecovered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extracted_resumes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "half written`), 0o644))

	sink := storage.NewFlatFileSink(path)
	ctx := context.Background()

	_, err := sink.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrSinkUnavailable, "读取损坏归档应报错而不是静默返回空")

	result, err := sink.Append(ctx, types.StructuredRecord{"name": "John Doe"})
	require.NoError(t, err)
	assert.True(t, result.Recovered, "损坏恢复应被单独报告")
	assert.Equal(t, 1, result.Count)

	records, err := sink.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "John Doe", records[0]["name"])

	backups, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, backups, 1, "原损坏内容应保留备份")
	backup, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, `[{"name": "half written`, string(backup))
}

func TestFlatFileSink_NonArrayIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"not an array"}`), 0o644))

	result, err := storage.NewFlatFileSink(path).Append(context.Background(), types.StructuredRecord{"name": "A"})
	require.NoError(t, err)
	assert.True(t, result.Recovered)
}

func TestFlatFileSink_TrailingBracketIsCorrupt(t *testing.T) {
	ctx := context.Background()
	for name, content := range map[string]string{
		"多余右方括号": `[{"name":"A"}]]`,
		"多余右花括号": `[{"name":"A"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "archive.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			sink := storage.NewFlatFileSink(path)

			_, err := sink.Records(ctx)
			assert.ErrorIs(t, err, storage.ErrSinkUnavailable)

			result, err := sink.Append(ctx, types.StructuredRecord{"name": "B"})
			require.NoError(t, err)
			assert.True(t, result.Recovered)
			assert.Equal(t, 1, result.Count)
		})
	}
}

func TestFlatFileSink_LatestSkipsNullEntries(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "archive.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"A"}, null]`), 0o644))
	record, err := storage.NewFlatFileSink(path).Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", record["name"])

	onlyNull := filepath.Join(t.TempDir(), "archive.json")
	require.NoError(t, os.WriteFile(onlyNull, []byte(`[null, null]`), 0o644))
	_, err = storage.NewFlatFileSink(onlyNull).Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrArchiveEmpty)
}

func TestFlatFileSink_EmptyArchive(t *testing.T) {
	sink := storage.NewFlatFileSink(filepath.Join(t.TempDir(), "missing.json"))

	_, err := sink.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrArchiveEmpty)

	records, err := sink.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFlatFileSink_PreservesNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	sink := storage.NewFlatFileSink(path)
	ctx := context.Background()

	_, err := sink.Append(ctx, types.StructuredRecord{"name": "A", "gpa": json.Number("3.90")})
	require.NoError(t, err)
	_, err = sink.Append(ctx, types.StructuredRecord{"name": "B"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"gpa": 3.90`, "重写归档时数字文本不应改变")
}

func TestFlatFileSink_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	sink := storage.NewFlatFileSink(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := sink.Append(context.Background(), types.StructuredRecord{"name": fmt.Sprintf("C%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, err := sink.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 10, "并发追加不应丢失记录")
}
