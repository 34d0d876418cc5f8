package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-scanner/internal/api/handler"
	"resume-scanner/internal/api/router"
	"resume-scanner/internal/processor"
	"resume-scanner/internal/storage"
	"resume-scanner/internal/types"
)

type fakeScanner struct {
	result *processor.RunResult
	err    error
	docs   []types.RawDocument
}

func (s *fakeScanner) Run(ctx context.Context, doc types.RawDocument) (*processor.RunResult, error) {
	s.docs = append(s.docs, doc)
	return s.result, s.err
}

func (s *fakeScanner) SinkName() string { return "flat" }

type fakeArchive struct {
	record types.StructuredRecord
	err    error
}

func (a *fakeArchive) Latest(ctx context.Context) (types.StructuredRecord, error) {
	return a.record, a.err
}

type fakeSearcher struct {
	gotText  string
	gotLimit int
	results  []types.SimilarResume
}

func (s *fakeSearcher) Query(ctx context.Context, text string, limit int) ([]types.SimilarResume, error) {
	s.gotText, s.gotLimit = text, limit
	return s.results, nil
}

func newEngine(t *testing.T, h *handler.ResumeHandler) *server.Hertz {
	t.Helper()
	engine := server.New(server.WithHostPorts("127.0.0.1:0"))
	router.RegisterRoutes(engine, h)
	return engine
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file"))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func postScan(engine *server.Hertz, body *bytes.Buffer, contentType string) *ut.ResponseRecorder {
	return ut.PerformRequest(engine.Engine, "POST", "/api/v1/resume/scan",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType},
	)
}

func TestHandleScan_Success(t *testing.T) {
	scanner := &fakeScanner{result: &processor.RunResult{
		RunID:   "run-1",
		State:   processor.StatePersisted,
		Outcome: types.OutcomeAppended,
		Record:  types.StructuredRecord{"name": "John Doe"},
		Statuses: []processor.Status{
			{Level: processor.LevelInfo, Code: processor.CodeUploaded},
			{Level: processor.LevelSuccess, Code: processor.CodeExtractionComplete},
			{Level: processor.LevelSuccess, Code: processor.CodePersisted},
		},
	}}
	engine := newEngine(t, handler.NewResumeHandler(scanner))

	body, ct := multipartBody(t, "file", "john.pdf", []byte("%PDF-1.4"))
	resp := postScan(engine, body, ct)
	require.Equal(t, 200, resp.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "Persisted", got["state"])
	assert.Equal(t, "appended", got["outcome"])
	assert.Equal(t, "John Doe", got["record"].(map[string]interface{})["name"])
	assert.Len(t, got["statuses"], 3)
	assert.NotContains(t, got, "error")

	require.Len(t, scanner.docs, 1)
	assert.Equal(t, "john.pdf", scanner.docs[0].Filename)
	assert.Equal(t, []byte("%PDF-1.4"), scanner.docs[0].Data)
}

func TestHandleScan_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"no text", processor.NewExtractionError("r", errors.New("no text")), 422},
		{"malformed", processor.NewNormalizationError("r", errors.New("bad json")), 422},
		{"model", processor.NewModelError("r", processor.KindTransport, errors.New("reset")), 502},
		{"persistence", processor.NewPersistenceError("r", errors.New("disk full")), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scanner := &fakeScanner{
				result: &processor.RunResult{RunID: "r", State: processor.StateFailed},
				err:    tc.err,
			}
			engine := newEngine(t, handler.NewResumeHandler(scanner))
			body, ct := multipartBody(t, "file", "a.pdf", []byte("%PDF"))

			resp := postScan(engine, body, ct)
			assert.Equal(t, tc.code, resp.Code)

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
			assert.Equal(t, "Failed", got["state"])
			assert.NotEmpty(t, got["error"])
		})
	}
}

func TestHandleScan_BadRequests(t *testing.T) {
	scanner := &fakeScanner{}
	engine := newEngine(t, handler.NewResumeHandler(scanner))

	body, ct := multipartBody(t, "", "", nil)
	assert.Equal(t, 400, postScan(engine, body, ct).Code)

	body, ct = multipartBody(t, "file", "resume.docx", []byte("PK"))
	assert.Equal(t, 400, postScan(engine, body, ct).Code)

	assert.Empty(t, scanner.docs)
}

func TestHandleLatest(t *testing.T) {
	t.Run("attachment", func(t *testing.T) {
		archive := &fakeArchive{record: types.StructuredRecord{"name": "Jane <Roe>"}}
		engine := newEngine(t, handler.NewResumeHandler(&fakeScanner{}, handler.WithArchive(archive)))

		resp := ut.PerformRequest(engine.Engine, "GET", "/api/v1/resume/latest", nil)
		require.Equal(t, 200, resp.Code)
		assert.Equal(t, "attachment; filename=extracted_resume.json", resp.Header().Get("Content-Disposition"))
		assert.Equal(t, "{\n    \"name\": \"Jane <Roe>\"\n}\n", resp.Body.String())
	})

	t.Run("empty archive", func(t *testing.T) {
		archive := &fakeArchive{err: storage.ErrArchiveEmpty}
		engine := newEngine(t, handler.NewResumeHandler(&fakeScanner{}, handler.WithArchive(archive)))
		resp := ut.PerformRequest(engine.Engine, "GET", "/api/v1/resume/latest", nil)
		assert.Equal(t, 404, resp.Code)
	})

	t.Run("indexed mode", func(t *testing.T) {
		engine := newEngine(t, handler.NewResumeHandler(&fakeScanner{}))
		resp := ut.PerformRequest(engine.Engine, "GET", "/api/v1/resume/latest", nil)
		assert.Equal(t, 404, resp.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	searcher := &fakeSearcher{results: []types.SimilarResume{{Key: "john_doe", Name: "John Doe", Score: 0.9}}}
	engine := newEngine(t, handler.NewResumeHandler(&fakeScanner{}, handler.WithSearcher(searcher)))

	resp := ut.PerformRequest(engine.Engine, "GET", "/api/v1/resume/search?q=golang&limit=abc", nil)
	require.Equal(t, 200, resp.Code)
	assert.Equal(t, "golang", searcher.gotText)
	assert.Equal(t, 5, searcher.gotLimit)

	var got struct {
		Results []types.SimilarResume `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, "john_doe", got.Results[0].Key)

	resp = ut.PerformRequest(engine.Engine, "GET", "/api/v1/resume/search?q=go&limit=2", nil)
	require.Equal(t, 200, resp.Code)
	assert.Equal(t, 2, searcher.gotLimit)

	resp = ut.PerformRequest(engine.Engine, "GET", "/api/v1/resume/search", nil)
	assert.Equal(t, 400, resp.Code)

	flat := newEngine(t, handler.NewResumeHandler(&fakeScanner{}))
	resp = ut.PerformRequest(flat.Engine, "GET", "/api/v1/resume/search?q=go", nil)
	assert.Equal(t, 404, resp.Code)
}

func TestHandleHealth(t *testing.T) {
	engine := newEngine(t, handler.NewResumeHandler(&fakeScanner{}))
	resp := ut.PerformRequest(engine.Engine, "GET", "/api/v1/health", nil)
	require.Equal(t, 200, resp.Code)
	assert.Contains(t, resp.Body.String(), `"sink":"flat"`)
}

func TestStatusForRunError(t *testing.T) {
	assert.Equal(t, 200, handler.StatusForRunError(nil))
	assert.Equal(t, 500, handler.StatusForRunError(errors.New("unexpected")))
}
