package cmd

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// newProgress returns a spinner for runs of unknown length, or nil when
// progress is disabled, logs are JSON or w is not a terminal.
func newProgress(w io.Writer, description string, disabled bool) *progressbar.ProgressBar {
	if disabled || appConfig == nil || appConfig.Logging.Format == "json" {
		return nil
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
