package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/shrey2003/DeepSeek-OCR-CPU/extraction"
	"github.com/shrey2003/DeepSeek-OCR-CPU/inference"
)

const (
	version   = "1.0.0"
	modelName = "deepseek-ocr"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables
	modelURL     = os.Getenv("DEEPSEEK_MODEL_URL")
	outputDir    = os.Getenv("OUTPUT_DIR")
	tempDir      = os.Getenv("TEMP_DIR")
	dataDir      = os.Getenv("DATA_DIR")
	serverPort   = os.Getenv("PORT")
	logLevel     = strings.ToLower(os.Getenv("LOG_LEVEL"))
	rateLimitRPS = os.Getenv("MODEL_RATE_LIMIT")

	// Templates
	ocrTemplate   *template.Template
	templateMutex sync.RWMutex

	// Default OCR prompt. The grounding token asks the model server to emit
	// <|ref|>...<|det|> tags alongside the markdown.
	defaultOcrPrompt = `<image>
<|grounding|>Convert the document to markdown. `
)

// App struct to hold dependencies
type App struct {
	runner    inference.ModelRunner
	Database  *gorm.DB
	modelURL  string
	outputDir string
	tempDir   string
}

func main() {
	// Load .env if present; real environment variables take precedence
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env file")
	}
	refreshEnvVars()

	// Validate Environment Variables
	validateEnvVars()

	// Initialize logrus logger
	initLogger()

	// Load Templates
	loadTemplates()

	for _, dir := range []string{outputDir, tempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Initialize Database
	database, err := InitializeDB(dataDir)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize model client
	rps := 0.0
	if rateLimitRPS != "" {
		rps, err = strconv.ParseFloat(rateLimitRPS, 64)
		if err != nil {
			log.Fatalf("Invalid MODEL_RATE_LIMIT value '%s': %v", rateLimitRPS, err)
		}
	}
	runner := NewModelClient(strings.TrimRight(modelURL, "/"), ocrTemplate, rps)

	// Initialize App with dependencies
	app := &App{
		runner:    runner,
		Database:  database,
		modelURL:  modelURL,
		outputDir: outputDir,
		tempDir:   tempDir,
	}

	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()

	// API routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", healthHandler)
		api.GET("/info", app.infoHandler)

		// OCR endpoints
		api.POST("/ocr/image", app.processImageHandler)
		api.POST("/ocr/pdf", app.processPDFHandler)
		api.POST("/ocr/pdf/enhanced", app.processPDFEnhancedHandler)

		// Async job endpoints
		api.POST("/jobs", app.submitPDFJobHandler)
		api.GET("/jobs/:job_id", app.getJobStatusHandler)
		api.GET("/jobs", app.getAllJobsHandler)
		api.POST("/jobs/:job_id/cancel", app.cancelJobHandler)

		// Local db actions
		api.GET("/history", app.getHistoryHandler)
	}

	// Start worker pool for async jobs
	numWorkers := 1 // PDF rendering is not thread-safe across documents
	startWorkerPool(app, numWorkers)

	port := serverPort
	if port == "" {
		port = "8000"
	}
	log.Infof("Server started on port :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// refreshEnvVars re-reads the environment after godotenv has loaded .env.
// Package-level defaults were captured before Load ran.
func refreshEnvVars() {
	modelURL = os.Getenv("DEEPSEEK_MODEL_URL")
	outputDir = os.Getenv("OUTPUT_DIR")
	tempDir = os.Getenv("TEMP_DIR")
	dataDir = os.Getenv("DATA_DIR")
	serverPort = os.Getenv("PORT")
	logLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	rateLimitRPS = os.Getenv("MODEL_RATE_LIMIT")

	if outputDir == "" {
		outputDir = "outputs"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if dataDir == "" {
		dataDir = "data"
	}
}

func initLogger() {
	switch logLevel {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	extraction.SetLogLevel(log.GetLevel())
	inference.SetLogLevel(log.GetLevel())
}

// validateEnvVars ensures all necessary environment variables are set
func validateEnvVars() {
	if modelURL == "" {
		log.Fatal("Please set the DEEPSEEK_MODEL_URL environment variable.")
	}
}

// loadTemplates loads the OCR prompt template from file or uses the default
func loadTemplates() {
	templateMutex.Lock()
	defer templateMutex.Unlock()

	// Ensure prompts directory exists
	promptsDir := "prompts"
	if err := os.MkdirAll(promptsDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create prompts directory: %v", err)
	}

	ocrTemplatePath := filepath.Join(promptsDir, "ocr_prompt.tmpl")
	ocrTemplateContent, err := os.ReadFile(ocrTemplatePath)
	if err != nil {
		log.Errorf("Could not read %s, using default template: %v", ocrTemplatePath, err)
		ocrTemplateContent = []byte(defaultOcrPrompt)
		if err := os.WriteFile(ocrTemplatePath, ocrTemplateContent, os.ModePerm); err != nil {
			log.Fatalf("Failed to write default OCR template to disk: %v", err)
		}
	}
	ocrTemplate, err = template.New("ocr").Funcs(sprig.FuncMap()).Parse(string(ocrTemplateContent))
	if err != nil {
		log.Fatalf("Failed to parse OCR template: %v", err)
	}
}
