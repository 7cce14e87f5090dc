package chat

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/hoidap/internal/chat/mocks"
	"github.com/hyperjump/hoidap/internal/config"
	"github.com/hyperjump/hoidap/internal/embedding"
	"github.com/hyperjump/hoidap/internal/models"
	"github.com/hyperjump/hoidap/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func chunk(content, source string, page *int) *models.RetrievedChunk {
	return &models.RetrievedChunk{Record: &models.VectorRecord{
		Content:  content,
		Metadata: models.DocumentMetadata{Source: source, Page: page},
	}}
}

func TestRespond_success(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := mocks.NewMockRetriever(ctrl)
	generator := mocks.NewMockGenerator(ctrl)

	retriever.EXPECT().
		Retrieve(gomock.Any(), "Học phí bao nhiêu?").
		Return([]*models.RetrievedChunk{
			chunk("Học phí là 15 triệu mỗi kỳ.", "/data/quyche.pdf", models.PageRef(2)),
			chunk("Nộp học phí tại phòng tài chính.", "/data/quyche.pdf", models.PageRef(2)),
			chunk("Bảng học phí", "/data/bang.xlsx", nil),
		}, nil)
	generator.EXPECT().
		Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "Học phí là 15 triệu mỗi kỳ.\n\nNộp học phí tại phòng tài chính.\n\nBảng học phí")
			assert.Contains(t, prompt, "Câu hỏi: Học phí bao nhiêu?")
			return "  15 triệu đồng.\n", nil
		})

	resp := NewSession(retriever, generator).Respond(context.Background(), "Học phí bao nhiêu?")
	assert.Equal(t, "15 triệu đồng.", resp.Answer)
	assert.Equal(t, []string{"bang.xlsx", "quyche.pdf, page: 2"}, resp.Sources)
}

func TestRespond_retrievalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := mocks.NewMockRetriever(ctrl)
	generator := mocks.NewMockGenerator(ctrl)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any()).Return(nil, errors.New("embedding down"))

	resp := NewSession(retriever, generator).Respond(context.Background(), "x")
	assert.Equal(t, MsgApology, resp.Answer)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
}

func TestRespond_generationErrorThenRecovers(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := mocks.NewMockRetriever(ctrl)
	generator := mocks.NewMockGenerator(ctrl)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any()).
		Return([]*models.RetrievedChunk{chunk("a", "/d/a.docx", nil)}, nil).Times(2)
	gomock.InOrder(
		generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("timeout")),
		generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("ok", nil),
	)

	s := NewSession(retriever, generator)
	first := s.Respond(context.Background(), "q1")
	assert.Equal(t, MsgApology, first.Answer)
	assert.Empty(t, first.Sources)

	second := s.Respond(context.Background(), "q2")
	assert.Equal(t, "ok", second.Answer)
	assert.Equal(t, []string{"a.docx"}, second.Sources)
}

type panickingRetriever struct{}

func (panickingRetriever) Retrieve(context.Context, string) ([]*models.RetrievedChunk, error) {
	panic("boom")
}

func TestRespond_panicBecomesApology(t *testing.T) {
	ctrl := gomock.NewController(t)
	resp := NewSession(panickingRetriever{}, mocks.NewMockGenerator(ctrl)).Respond(context.Background(), "x")
	assert.Equal(t, MsgApology, resp.Answer)
}

func TestRespond_notInitialized(t *testing.T) {
	var s *Session
	resp := s.Respond(context.Background(), "x")
	assert.Equal(t, MsgNotInitialized, resp.Answer)
	assert.Empty(t, resp.Sources)

	resp = (&Session{}).Respond(context.Background(), "x")
	assert.Equal(t, MsgNotInitialized, resp.Answer)
	assert.NoError(t, s.Close())
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		meta models.DocumentMetadata
		want string
	}{
		{models.DocumentMetadata{Source: "/data/documents/luat.pdf", Page: models.PageRef(1)}, "luat.pdf, page: 1"},
		{models.DocumentMetadata{Source: "/data/documents/quyche.docx"}, "quyche.docx"},
		{models.DocumentMetadata{Source: "bang.xlsx", Sheet: "Học phí"}, "bang.xlsx, sheet: Học phí"},
		{models.DocumentMetadata{}, "Không rõ file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SourceLabel(tt.meta))
	}
}

func TestDedupeSources(t *testing.T) {
	assert.Equal(t, []string{"a.pdf, page: 1", "b.docx"}, DedupeSources([]string{"b.docx", "a.pdf, page: 1", "b.docx"}))
	assert.Equal(t, []string{}, DedupeSources(nil))
}

func TestBuildPrompt(t *testing.T) {
	p, err := BuildPrompt("Ngữ cảnh <b>&", "Câu hỏi?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "Sử dụng các đoạn văn bản ngữ cảnh"))
	assert.Contains(t, p, "Ngữ cảnh <b>&")
	assert.True(t, strings.HasSuffix(p, "Câu hỏi: Câu hỏi?\nTrả lời tiếng Việt:"))
}

func writeDocx(t *testing.T, path, text string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
}

func fakeRuntime(t *testing.T, model string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"` + model + `:latest"}]}`))
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"response": " Ký túc xá mở cửa lúc 5 giờ. ", "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func initConfig(t *testing.T, llmURL string) *config.Config {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "documents")
	require.NoError(t, os.MkdirAll(docs, 0755))
	writeDocx(t, filepath.Join(docs, "kytucxa.docx"), "Ký túc xá mở cửa từ 5 giờ sáng đến 23 giờ.")
	return &config.Config{
		Paths:     config.PathsConfig{DocumentsDir: docs, VectorDBDir: filepath.Join(root, "vector_db")},
		Embedding: config.EmbeddingConfig{Provider: config.EmbeddingHash, Dimensions: 8, BatchSize: 4},
		Vector:    config.VectorConfig{IndexType: config.IndexMemory},
		LLM:       config.LLMConfig{Provider: config.LLMOllama, BaseURL: llmURL, Model: "llama3"},
		Chunking:  config.ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Retrieval: config.RetrievalConfig{TopK: 3},
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	cfg := initConfig(t, fakeRuntime(t, "llama3").URL)
	emb := embedding.NewHashEmbedder(8)
	built, err := vectorstore.Build(ctx, cfg, emb)
	require.NoError(t, err)
	require.NoError(t, built.Close())

	s, err := Initialize(ctx, cfg, emb)
	require.NoError(t, err)
	defer s.Close()

	resp := s.Respond(ctx, "Ký túc xá mở cửa lúc mấy giờ?")
	assert.Equal(t, "Ký túc xá mở cửa lúc 5 giờ.", resp.Answer)
	assert.Equal(t, []string{"kytucxa.docx"}, resp.Sources)
}

func TestInitialize_storeMissing(t *testing.T) {
	cfg := initConfig(t, fakeRuntime(t, "llama3").URL)
	_, err := Initialize(context.Background(), cfg, embedding.NewHashEmbedder(8))
	assert.ErrorIs(t, err, vectorstore.ErrStoreMissing)
}

func TestInitialize_llmUnavailable(t *testing.T) {
	ctx := context.Background()
	cfg := initConfig(t, fakeRuntime(t, "mistral").URL)
	emb := embedding.NewHashEmbedder(8)
	store, err := vectorstore.Build(ctx, cfg, emb)
	require.NoError(t, err)

	_, err = Initialize(ctx, cfg, emb, WithStore(store))
	assert.ErrorIs(t, err, ErrLLMUnavailable)
	assert.ErrorContains(t, err, "llama3")
}
