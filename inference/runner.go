package inference

import (
	"context"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the inference package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// ModelOutput is what the OCR model produces for one page image: the rendered
// markdown and the raw text blob carrying grounding references. Token counts
// may be zero when the model backend does not report them.
type ModelOutput struct {
	Markdown        string
	RawOutput       string
	TokensGenerated int
	InputTokens     int
}

// ModelRunner is the boundary to the OCR model. The pipeline never looks
// behind it; any backend that turns a page image into markdown plus grounded
// raw output can drive the pipeline.
type ModelRunner interface {
	Infer(ctx context.Context, imagePath string) (*ModelOutput, error)
}
