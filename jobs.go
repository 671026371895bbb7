package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shrey2003/DeepSeek-OCR-CPU/inference"
)

var (
	jobCancellersMu sync.Mutex
	jobCancellers   = make(map[string]context.CancelFunc)
)

// Job represents an asynchronous enhanced PDF processing job
type Job struct {
	ID            string
	Filename      string
	PDFPath       string // Temp path of the uploaded PDF; removed when the job finishes
	Status        string // "pending", "in_progress", "completed", "failed", "cancelled"
	Result        string // Output directory on success, error message on failure
	TotalElements int
	NumPages      int
	Options       inference.EnhancedOptions
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs map[string]*Job
}

var (
	jobLogger = logrus.New()

	jobStore = &JobStore{
		jobs: make(map[string]*Job),
	}
	jobQueue = make(chan *Job, 100) // Buffered channel with capacity of 100 jobs
)

func init() {
	jobLogger.SetOutput(os.Stdout)
	jobLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	jobLogger.SetLevel(logrus.InfoLevel)
}

func generateJobID() string {
	return uuid.New().String()
}

func (store *JobStore) addJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	store.jobs[job.ID] = job
	jobLogger.Infof("Job added: %s (%s)", job.ID, job.Filename)
}

func (store *JobStore) getJob(jobID string) (*Job, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	return job, exists
}

func (store *JobStore) GetAllJobs() []*Job {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]*Job, 0, len(store.jobs))
	for _, job := range store.jobs {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

func (store *JobStore) updateJobStatus(jobID, status, result string) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.Status = status
		if result != "" {
			job.Result = result
		}
		job.UpdatedAt = time.Now()
		jobLogger.Infof("Job %s status updated: %s", jobID, status)
	}
}

func (store *JobStore) updateJobProgress(jobID string, numPages, totalElements int) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.NumPages = numPages
		job.TotalElements = totalElements
		job.UpdatedAt = time.Now()
	}
}

func (store *JobStore) cancelJob(jobID string) bool {
	jobCancellersMu.Lock()
	cancel, exists := jobCancellers[jobID]
	jobCancellersMu.Unlock()
	if exists {
		cancel()
	}
	return exists
}

func startWorkerPool(app *App, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			jobLogger.Infof("Worker %d started", workerID)
			for job := range jobQueue {
				jobLogger.Infof("Worker %d processing job: %s", workerID, job.ID)
				processJob(app, job)
			}
		}(i)
	}
}

func processJob(app *App, job *Job) {
	jobStore.updateJobStatus(job.ID, "in_progress", "")

	jobCtx, cancel := context.WithCancel(context.Background())
	jobCancellersMu.Lock()
	jobCancellers[job.ID] = cancel
	jobCancellersMu.Unlock()
	defer func() {
		cancel()
		jobCancellersMu.Lock()
		delete(jobCancellers, job.ID)
		jobCancellersMu.Unlock()
		if job.PDFPath != "" {
			os.Remove(job.PDFPath)
		}
	}()

	outputDir := filepath.Join(app.outputDir, job.ID)

	start := time.Now()
	result, err := inference.ProcessPDFEnhanced(jobCtx, app.runner, job.PDFPath, outputDir, job.Options)
	if err != nil {
		if jobCtx.Err() == context.Canceled {
			jobStore.updateJobStatus(job.ID, "cancelled", "Job cancelled by user")
			jobLogger.Infof("Job cancelled: %s", job.ID)
		} else {
			jobLogger.Errorf("Error processing PDF for job %s: %v", job.ID, err)
			jobStore.updateJobStatus(job.ID, "failed", err.Error())
		}
		return
	}

	jobStore.updateJobProgress(job.ID, result.Structure.DocumentMetadata.NumPages, result.Structure.DocumentMetadata.TotalElements)
	jobStore.updateJobStatus(job.ID, "completed", result.OutputDir)

	if app.Database != nil {
		record := ProcessingRecord{
			Filename:       job.Filename,
			Mode:           "pdf_enhanced",
			NumPages:       result.Structure.DocumentMetadata.NumPages,
			TotalElements:  result.Structure.DocumentMetadata.TotalElements,
			ProcessingTime: time.Since(start).Seconds(),
			OutputDir:      result.OutputDir,
		}
		if err := InsertProcessingRecord(app.Database, record); err != nil {
			jobLogger.Errorf("Failed to record job %s in history: %v", job.ID, err)
		}
	}

	jobLogger.Infof("Job completed: %s", job.ID)
}
