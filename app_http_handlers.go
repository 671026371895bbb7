package main

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/shrey2003/DeepSeek-OCR-CPU/inference"
)

// healthHandler handles the GET /api/v1/health endpoint
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   version,
	})
}

// infoHandler handles the GET /api/v1/info endpoint
func (app *App) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ModelInfoResponse{
		ModelName: modelName,
		ModelURL:  app.modelURL,
		Version:   version,
	})
}

// processImageHandler handles the POST /api/v1/ocr/image endpoint
func (app *App) processImageHandler(c *gin.Context) {
	ctx := c.Request.Context()

	uploadPath, filename, err := app.saveUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer os.Remove(uploadPath)

	if err := requireMimePrefix(uploadPath, "image/"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outputDir := filepath.Join(app.outputDir, generateJobID())

	markdown, metrics, err := inference.ProcessImageWithMetrics(ctx, app.runner, uploadPath, outputDir)
	if err != nil {
		log.Errorf("Error processing image %s: %v", filename, err)
		c.JSON(http.StatusInternalServerError, ImageOCRResponse{Error: err.Error()})
		return
	}

	app.recordRun(filename, "image", 1, 0, metrics.TotalTime, outputDir)

	c.JSON(http.StatusOK, ImageOCRResponse{
		Success:         true,
		Text:            markdown,
		ProcessingTime:  metrics.TotalTime,
		TokensGenerated: metrics.TokensGenerated,
		TokensPerSecond: metrics.TokensPerSecond,
		OutputFiles:     collectOutputFiles(outputDir),
	})
}

// processPDFHandler handles the POST /api/v1/ocr/pdf endpoint
func (app *App) processPDFHandler(c *gin.Context) {
	ctx := c.Request.Context()

	uploadPath, filename, err := app.saveUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer os.Remove(uploadPath)

	if err := requireMimePrefix(uploadPath, "application/pdf"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startPage, endPage, err := parsePageRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outputDir := filepath.Join(app.outputDir, generateJobID())

	markdown, agg, err := inference.ProcessPDFWithMetrics(ctx, app.runner, uploadPath, outputDir, startPage, endPage)
	if err != nil {
		log.Errorf("Error processing PDF %s: %v", filename, err)
		c.JSON(http.StatusInternalServerError, PDFOCRResponse{Error: err.Error()})
		return
	}

	app.recordRun(filename, "pdf", agg.NumOperations, 0, agg.TotalTime, outputDir)

	c.JSON(http.StatusOK, PDFOCRResponse{
		Success:        true,
		Text:           markdown,
		NumPages:       agg.NumOperations,
		ProcessingTime: agg.TotalTime,
		PagesProcessed: pagesProcessed(startPage, agg.NumOperations),
		OutputFiles:    collectOutputFiles(outputDir),
	})
}

// processPDFEnhancedHandler handles the POST /api/v1/ocr/pdf/enhanced endpoint
func (app *App) processPDFEnhancedHandler(c *gin.Context) {
	ctx := c.Request.Context()

	uploadPath, filename, err := app.saveUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer os.Remove(uploadPath)

	if err := requireMimePrefix(uploadPath, "application/pdf"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts, err := parseEnhancedOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outputDir := filepath.Join(app.outputDir, generateJobID())

	start := time.Now()
	result, err := inference.ProcessPDFEnhanced(ctx, app.runner, uploadPath, outputDir, opts)
	if err != nil {
		log.Errorf("Error processing PDF %s: %v", filename, err)
		c.JSON(http.StatusInternalServerError, PDFEnhancedResponse{Error: err.Error()})
		return
	}
	elapsed := time.Since(start).Seconds()

	meta := result.Structure.DocumentMetadata
	app.recordRun(filename, "pdf_enhanced", meta.NumPages, meta.TotalElements, elapsed, result.OutputDir)

	pages := make([]int, 0, len(result.Pages))
	for _, page := range result.Pages {
		pages = append(pages, page.PageNumber)
	}

	c.JSON(http.StatusOK, PDFEnhancedResponse{
		Success:        true,
		Text:           result.Markdown,
		Structure:      result.Structure,
		NumPages:       meta.NumPages,
		ProcessingTime: elapsed,
		PagesProcessed: pages,
		OutputFiles:    collectOutputFiles(result.OutputDir),
	})
}

// submitPDFJobHandler handles the POST /api/v1/jobs endpoint. The uploaded
// PDF is queued for enhanced processing by the worker pool.
func (app *App) submitPDFJobHandler(c *gin.Context) {
	uploadPath, filename, err := app.saveUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := requireMimePrefix(uploadPath, "application/pdf"); err != nil {
		os.Remove(uploadPath)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts, err := parseEnhancedOptions(c)
	if err != nil {
		os.Remove(uploadPath)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := generateJobID()
	job := &Job{
		ID:        jobID,
		Filename:  filename,
		PDFPath:   uploadPath,
		Status:    "pending",
		Options:   opts,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	jobStore.addJob(job)
	jobQueue <- job

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (app *App) getJobStatusHandler(c *gin.Context) {
	jobID := c.Param("job_id")

	job, exists := jobStore.getJob(jobID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, jobResponse(job))
}

func (app *App) getAllJobsHandler(c *gin.Context) {
	jobs := jobStore.GetAllJobs()

	jobList := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		jobList = append(jobList, jobResponse(job))
	}

	c.JSON(http.StatusOK, jobList)
}

func (app *App) cancelJobHandler(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, exists := jobStore.getJob(jobID); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	if !jobStore.cancelJob(jobID) {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not running"})
		return
	}

	c.Status(http.StatusOK)
}

func jobResponse(job *Job) gin.H {
	response := gin.H{
		"job_id":     job.ID,
		"filename":   job.Filename,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}

	if job.Status == "completed" {
		response["result"] = job.Result
		response["num_pages"] = job.NumPages
		response["total_elements"] = job.TotalElements
	} else if job.Status == "failed" {
		response["error"] = job.Result
	}

	return response
}

// Section for local-db actions

func (app *App) getHistoryHandler(c *gin.Context) {
	records, err := GetAllProcessingRecords(app.Database)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve processing history"})
		log.Errorf("Failed to retrieve processing history: %v", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// saveUpload stores the request's "file" form field under the temp directory
// and returns the stored path plus the client-supplied filename.
func (app *App) saveUpload(c *gin.Context) (string, string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("missing file upload: %w", err)
	}

	uploadPath := filepath.Join(app.tempDir, generateJobID()+filepath.Ext(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, uploadPath); err != nil {
		return "", "", fmt.Errorf("failed to store upload: %w", err)
	}

	return uploadPath, fileHeader.Filename, nil
}

// requireMimePrefix sniffs the file content and rejects anything whose
// detected type does not start with wantPrefix. Extensions are not trusted.
func requireMimePrefix(path, wantPrefix string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), wantPrefix) {
		return fmt.Errorf("unsupported file type %s, expected %s*", mtype.String(), wantPrefix)
	}
	return nil
}

func parsePageRange(c *gin.Context) (int, int, error) {
	startPage, err := queryInt(c, "start_page")
	if err != nil {
		return 0, 0, err
	}
	endPage, err := queryInt(c, "end_page")
	if err != nil {
		return 0, 0, err
	}
	if startPage < 0 || endPage < 0 {
		return 0, 0, fmt.Errorf("page numbers must be positive")
	}
	return startPage, endPage, nil
}

func parseEnhancedOptions(c *gin.Context) (inference.EnhancedOptions, error) {
	opts := inference.DefaultEnhancedOptions()

	startPage, endPage, err := parsePageRange(c)
	if err != nil {
		return opts, err
	}
	opts.StartPage = startPage
	opts.EndPage = endPage

	if v := c.Query("overlays"); v != "" {
		opts.GenerateOverlays, err = strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid overlays parameter: %w", err)
		}
	}
	if v := c.Query("save_elements"); v != "" {
		opts.SaveElements, err = strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid save_elements parameter: %w", err)
		}
	}
	if v := c.Query("padding"); v != "" {
		opts.Extract.Padding, err = strconv.Atoi(v)
		if err != nil || opts.Extract.Padding < 0 {
			return opts, fmt.Errorf("invalid padding parameter: %q", v)
		}
	}

	return opts, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %q", name, v)
	}
	return n, nil
}

func pagesProcessed(startPage, numPages int) []int {
	if startPage < 1 {
		startPage = 1
	}
	pages := make([]int, numPages)
	for i := range pages {
		pages[i] = startPage + i
	}
	return pages
}

// collectOutputFiles lists every file under root, relative to root. Errors
// are deliberately swallowed: the listing is advisory.
func collectOutputFiles(root string) []string {
	var files []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			files = append(files, rel)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func (app *App) recordRun(filename, mode string, numPages, totalElements int, seconds float64, outputDir string) {
	if app.Database == nil {
		return
	}
	record := ProcessingRecord{
		Filename:       filename,
		Mode:           mode,
		NumPages:       numPages,
		TotalElements:  totalElements,
		ProcessingTime: seconds,
		OutputDir:      outputDir,
	}
	if err := InsertProcessingRecord(app.Database, record); err != nil {
		log.Errorf("Failed to record %s run in history: %v", mode, err)
	}
}
