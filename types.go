package main

import (
	"time"

	"github.com/shrey2003/DeepSeek-OCR-CPU/inference"
)

// HealthResponse is the payload for the /health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ModelInfoResponse is the payload for the /info endpoint.
type ModelInfoResponse struct {
	ModelName string `json:"model_name"`
	ModelURL  string `json:"model_url"`
	Version   string `json:"version"`
}

// ImageOCRResponse is the payload for the /ocr/image endpoint.
type ImageOCRResponse struct {
	Success         bool     `json:"success"`
	Text            string   `json:"text"`
	ProcessingTime  float64  `json:"processing_time"`
	TokensGenerated int      `json:"tokens_generated,omitempty"`
	TokensPerSecond float64  `json:"tokens_per_second,omitempty"`
	OutputFiles     []string `json:"output_files,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// PDFOCRResponse is the payload for the /ocr/pdf endpoint.
type PDFOCRResponse struct {
	Success        bool     `json:"success"`
	Text           string   `json:"text"`
	NumPages       int      `json:"num_pages"`
	ProcessingTime float64  `json:"processing_time"`
	PagesProcessed []int    `json:"pages_processed"`
	OutputFiles    []string `json:"output_files,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// PDFEnhancedResponse is the payload for the /ocr/pdf/enhanced endpoint.
type PDFEnhancedResponse struct {
	Success        bool                        `json:"success"`
	Text           string                      `json:"text"`
	Structure      inference.DocumentStructure `json:"structure"`
	NumPages       int                         `json:"num_pages"`
	ProcessingTime float64                     `json:"processing_time"`
	PagesProcessed []int                       `json:"pages_processed"`
	OutputFiles    []string                    `json:"output_files,omitempty"`
	Error          string                      `json:"error,omitempty"`
}
