// Package util carries this project's ambient logging and progress
// reporting: an atomic-counter-plus-ticker renderer for rows appended and
// files processed, with a structured one-line-per-event mode for
// non-interactive runs.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

const (
	progressBoxInnerWidth = 72
	progressBarWidth      = 34
)

// NewFileBar returns a themed, file-count progress bar for interactive runs.
func NewFileBar(totalFiles int, action string, out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		totalFiles,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription(action),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetWidth(progressBarWidth),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}

// Progress tracks rows-appended and files-processed counters and renders
// them either as a live-updating terminal display (text format, interactive
// stdout) or as one line per poll (any other case). Interactively, file
// completion drives a schollz/progressbar/v3 bar; the row-rate figures
// print as a plain line beneath it.
type Progress struct {
	totalFiles  int
	action      string
	interval    time.Duration
	format      string
	out         io.Writer
	interactive bool
	bar         *progressbar.ProgressBar

	files atomic.Int64
	rows  atomic.Int64

	done chan struct{}
}

// NewProgress starts a progress reporter for a run expected to touch
// totalFiles input files. format is "text" or "json"; out is usually
// os.Stdout.
func NewProgress(totalFiles int, action, format string, out io.Writer) *Progress {
	p := &Progress{
		totalFiles: totalFiles,
		action:     action,
		interval:   500 * time.Millisecond,
		format:     format,
		out:        out,
		done:       make(chan struct{}),
	}
	if f, ok := out.(*os.File); ok {
		p.interactive = format != "json" && term.IsTerminal(int(f.Fd()))
	}
	if p.interactive {
		p.bar = NewFileBar(totalFiles, action, out)
	}
	if totalFiles > 0 {
		p.start()
	}
	return p
}

// AddRows records rows appended to the output so far.
func (p *Progress) AddRows(delta int64) {
	if delta != 0 {
		p.rows.Add(delta)
	}
}

// AddFiles records input files fully processed so far.
func (p *Progress) AddFiles(delta int64) {
	if delta != 0 {
		p.files.Add(delta)
	}
}

// Snapshot returns the current files/rows counts.
func (p *Progress) Snapshot() (files, rows int64) {
	return p.files.Load(), p.rows.Load()
}

// Stop halts the background renderer, if one was started.
func (p *Progress) Stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func (p *Progress) start() {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		prevRows := int64(0)
		prevFiles := int64(0)
		prevTime := time.Now()

		render := func() bool {
			curFiles := p.files.Load()
			curRows := p.rows.Load()
			now := time.Now()
			elapsed := now.Sub(prevTime).Seconds()
			rowsPerSec := rate(curRows-prevRows, elapsed)

			if p.interactive {
				if delta := curFiles - prevFiles; delta > 0 {
					_ = p.bar.Add64(delta)
				}
				fmt.Fprintf(p.out, "  %s\r", padTo(fmt.Sprintf("%d rows appended (%.0f rows/s)", curRows, rowsPerSec), progressBoxInnerWidth))
			} else {
				p.renderLine(curFiles, curRows, rowsPerSec)
			}
			prevRows = curRows
			prevFiles = curFiles
			prevTime = now
			return p.totalFiles > 0 && curFiles >= int64(p.totalFiles)
		}

		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				if render() {
					return
				}
			}
		}
	}()
}

func rate(delta int64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return float64(delta) / elapsedSeconds
}

func (p *Progress) renderLine(files, rows int64, rowsPerSec float64) {
	if p.format == "json" {
		enc := json.NewEncoder(p.out)
		_ = enc.Encode(map[string]any{
			"event":        "progress",
			"action":       p.action,
			"files":        files,
			"total_files":  p.totalFiles,
			"rows":         rows,
			"rows_per_sec": rowsPerSec,
		})
		return
	}
	fmt.Fprintf(p.out, "%s: %d/%d files, %d rows (%.0f rows/s)\n", p.action, files, p.totalFiles, rows, rowsPerSec)
}

func padTo(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	b := make([]byte, width)
	copy(b, s)
	for i := len(s); i < width; i++ {
		b[i] = ' '
	}
	return string(b)
}
