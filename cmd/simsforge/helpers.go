package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/fakescore"
	"github.com/teyk0o/simsforge/internal/installer"
)

const (
	maxFetchAttempts  = 3
	initialRetryDelay = time.Second
)

func printJSON(v any) error {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}

// newProgressSink returns an installer.ProgressSink that updates a pterm
// spinner with the current stage and detail, or nil when --json was
// requested (structured output and a live spinner don't mix).
func newProgressSink() (installer.ProgressSink, func()) {
	if jsonOutput {
		return nil, func() {}
	}

	spinner, _ := pterm.DefaultSpinner.Start("starting")
	sink := func(stage, detail string) {
		text := stage
		if detail != "" {
			text = fmt.Sprintf("%s (%s%%)", stage, detail)
		}
		spinner.UpdateText(text)
	}
	stop := func() {
		spinner.Success("done")
	}
	return sink, stop
}

// decisionPrompt asks the user how to proceed once the Fake-Score
// Evaluator has flagged an archive suspicious. Always installs without
// prompting under --json, since there is no interactive terminal to ask.
func decisionPrompt(score fakescore.Result) installer.Decision {
	if jsonOutput {
		return installer.DecisionInstall
	}

	pterm.Warning.Printf("this archive looks suspicious (score %d): %v\n", score.Score, score.Reasons)
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"install anyway", "cancel", "report as fake"}).
		Show()
	if err != nil {
		return installer.DecisionCancel
	}

	switch choice {
	case "install anyway":
		return installer.DecisionInstall
	case "report as fake":
		return installer.DecisionReport
	default:
		return installer.DecisionCancel
	}
}

// retryableDownloadError reports whether err carries one of spec.md §7's
// transient download kinds (DownloadFailed, TooManyRedirects,
// DownloadStalled) — the core installer makes exactly one fetch attempt
// and leaves retry policy for these to the caller.
func retryableDownloadError(err error) bool {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return false
	}
	switch derr.Kind {
	case domain.ErrKindDownloadFailed, domain.ErrKindTooManyRedirects, domain.ErrKindDownloadStalled:
		return true
	default:
		return false
	}
}

// withFetchRetry retries op with exponential backoff when it fails with a
// transient download error, up to maxFetchAttempts total attempts. Backoff
// shape (1s initial, doubling) mirrors the teacher's
// internal/core.Downloader.Download retry loop, moved here since the core
// pipeline itself no longer retries.
func withFetchRetry(op func() error) error {
	delay := initialRetryDelay
	var err error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		err = op()
		if err == nil || attempt == maxFetchAttempts || !retryableDownloadError(err) {
			return err
		}
		printf("attempt %d failed (%v), retrying...\n", attempt, err)
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func confirm(prompt string) bool {
	if jsonOutput {
		return true
	}
	result, _ := pterm.DefaultInteractiveConfirm.WithDefaultText(prompt).Show()
	return result
}
