package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrey2003/DeepSeek-OCR-CPU/inference"
)

type stubRunner struct {
	out inference.ModelOutput
	err error
}

func (s *stubRunner) Infer(ctx context.Context, imagePath string) (*inference.ModelOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := s.out
	return &out, nil
}

func newTestApp(t *testing.T, runner inference.ModelRunner) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := InitializeDB(t.TempDir())
	require.NoError(t, err)

	app := &App{
		runner:    runner,
		Database:  db,
		modelURL:  "http://model:9000",
		outputDir: t.TempDir(),
		tempDir:   t.TempDir(),
	}

	router := gin.New()
	api := router.Group("/api/v1")
	{
		api.GET("/health", healthHandler)
		api.GET("/info", app.infoHandler)
		api.POST("/ocr/image", app.processImageHandler)
		api.GET("/jobs/:job_id", app.getJobStatusHandler)
		api.GET("/jobs", app.getAllJobsHandler)
		api.GET("/history", app.getHistoryHandler)
	}
	return app, router
}

func multipartImageBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, color.White)
		}
	}
	imgPath := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, imaging.Save(img, imgPath))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	src, err := imaging.Open(imgPath)
	require.NoError(t, err)
	require.NoError(t, imaging.Encode(part, src, imaging.PNG))
	require.NoError(t, writer.Close())

	return &body, writer.FormDataContentType()
}

func TestHealthHandler(t *testing.T) {
	_, router := newTestApp(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, version, resp.Version)
}

func TestInfoHandler(t *testing.T) {
	_, router := newTestApp(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/info", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ModelInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, modelName, resp.ModelName)
	assert.Equal(t, "http://model:9000", resp.ModelURL)
}

func TestProcessImageHandler(t *testing.T) {
	runner := &stubRunner{out: inference.ModelOutput{
		Markdown:        "# Invoice",
		RawOutput:       "<|ref|>title<|/ref|><|det|>[[0, 0, 100, 50]]<|/det|>",
		TokensGenerated: 42,
	}}
	app, router := newTestApp(t, runner)

	body, contentType := multipartImageBody(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/ocr/image", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ImageOCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "# Invoice", resp.Text)
	assert.Equal(t, 42, resp.TokensGenerated)
	assert.Contains(t, resp.OutputFiles, "result.mmd")

	// Run recorded in history
	records, err := GetAllProcessingRecords(app.Database)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "scan.png", records[0].Filename)
	assert.Equal(t, "image", records[0].Mode)
}

func TestProcessImageHandlerMissingFile(t *testing.T) {
	_, router := newTestApp(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/ocr/image", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessImageHandlerRejectsNonImage(t *testing.T) {
	_, router := newTestApp(t, &stubRunner{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text, not an image"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/ocr/image", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported file type")
}

func TestGetJobStatusHandlerNotFound(t *testing.T) {
	_, router := newTestApp(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/jobs/does-not-exist", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHistoryHandlerEmpty(t *testing.T) {
	_, router := newTestApp(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var records []ProcessingRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Empty(t, records)
}

func TestPagesProcessed(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, pagesProcessed(0, 3))
	assert.Equal(t, []int{3, 4, 5}, pagesProcessed(3, 3))
	assert.Empty(t, pagesProcessed(1, 0))
}

func TestParseEnhancedOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		query   string
		wantErr bool
		check   func(t *testing.T, opts inference.EnhancedOptions)
	}{
		{
			name:  "defaults",
			query: "",
			check: func(t *testing.T, opts inference.EnhancedOptions) {
				assert.True(t, opts.GenerateOverlays)
				assert.True(t, opts.SaveElements)
				assert.Zero(t, opts.StartPage)
			},
		},
		{
			name:  "page range and flags",
			query: "start_page=3&end_page=5&overlays=false&padding=7",
			check: func(t *testing.T, opts inference.EnhancedOptions) {
				assert.Equal(t, 3, opts.StartPage)
				assert.Equal(t, 5, opts.EndPage)
				assert.False(t, opts.GenerateOverlays)
				assert.Equal(t, 7, opts.Extract.Padding)
			},
		},
		{
			name:    "bad padding",
			query:   "padding=-2",
			wantErr: true,
		},
		{
			name:    "bad start page",
			query:   "start_page=abc",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("POST", "/api/v1/ocr/pdf/enhanced?"+tc.query, nil)

			opts, err := parseEnhancedOptions(c)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, opts)
		})
	}
}
