// Package ocr prepares document images before they are sent to a vision
// model. Enhancement runs through ImageMagick when it is installed and
// degrades to a no-op when it is not.
package ocr

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Preprocessor enhances document images for model readability.
type Preprocessor struct {
	log zerolog.Logger
}

// NewPreprocessor creates an image preprocessor.
func NewPreprocessor(log zerolog.Logger) *Preprocessor {
	return &Preprocessor{log: log}
}

// Enhance applies grayscale, contrast and sharpening filters. Any failure
// returns the original bytes so a missing ImageMagick never breaks uploads.
func (p *Preprocessor) Enhance(imageData []byte) ([]byte, error) {
	tmpDir := os.TempDir()
	inputFile := filepath.Join(tmpDir, fmt.Sprintf("doc_in_%d.jpg", os.Getpid()))
	outputFile := filepath.Join(tmpDir, fmt.Sprintf("doc_out_%d.jpg", os.Getpid()))

	if err := os.WriteFile(inputFile, imageData, 0644); err != nil {
		return imageData, nil
	}
	defer os.Remove(inputFile)
	defer os.Remove(outputFile)

	// Pipeline: resize (if too large) -> grayscale -> contrast -> denoise -> sharpen
	args := []string{
		inputFile,
		"-resize", "2000x2000>",
		"-colorspace", "Gray",
		"-normalize",
		"-contrast-stretch", "2%x1%",
		"-despeckle",
		"-sharpen", "0x1",
		"-unsharp", "0x0.5+0.5+0",
		"-quality", "95",
		outputFile,
	}

	// Try 'magick' first (ImageMagick 7), fallback to 'convert' (ImageMagick 6)
	var cmd *exec.Cmd
	if _, err := exec.LookPath("magick"); err == nil {
		cmd = exec.Command("magick", args...)
	} else if _, err := exec.LookPath("convert"); err == nil {
		cmd = exec.Command("convert", args...)
	} else {
		return imageData, nil
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.log.Warn().Err(err).Str("stderr", stderr.String()).Msg("image enhancement failed, using original")
		return imageData, nil
	}

	processed, err := os.ReadFile(outputFile)
	if err != nil {
		return imageData, nil
	}

	p.log.Debug().
		Int("original_bytes", len(imageData)).
		Int("processed_bytes", len(processed)).
		Msg("image enhanced")
	return processed, nil
}
