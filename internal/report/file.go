package report

import (
	"bytes"
	"fmt"

	"github.com/KaramelBytes/nca-cli/internal/utils"
)

// WriteFile renders r in format and writes it atomically to path, appending
// the format's extension when path lacks it. It returns the final path.
func WriteFile(path, format string, r *Report) (string, error) {
	var buf bytes.Buffer
	sink, err := NewSink(format, &buf)
	if err != nil {
		return "", err
	}
	if err := r.Stream(sink); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	path = utils.EnsureExt(path, Extension(format))
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
