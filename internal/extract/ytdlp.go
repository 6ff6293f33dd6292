package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// YtDlpStrategy downloads subtitles with yt-dlp into a scratch directory and
// reads back whichever SRT or VTT files it produced.
type YtDlpStrategy struct {
	binary    string
	languages []string
	timeout   time.Duration
	run       CommandRunner
}

func NewYtDlpStrategy(binary string, languages []string, timeout time.Duration, run CommandRunner) *YtDlpStrategy {
	if run == nil {
		run = ExecRunner
	}
	return &YtDlpStrategy{binary: binary, languages: languages, timeout: timeout, run: run}
}

func (s *YtDlpStrategy) Name() string           { return StrategyYtDlp }
func (s *YtDlpStrategy) Timeout() time.Duration { return s.timeout }

func (s *YtDlpStrategy) Extract(ctx context.Context, target Target) Outcome {
	dir, err := os.MkdirTemp("", "ytscribe-subs-")
	if err != nil {
		return Outcome{Err: fmt.Errorf("scratch dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	args := []string{
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", strings.Join(s.languages, ","),
		"--sub-format", "srt/vtt/best",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--output", filepath.Join(dir, "%(id)s.%(ext)s"),
		youtube.WatchURL(string(target)),
	}

	out, err := s.run(ctx, s.binary, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Outcome{Reason: s.binary + " not installed", Err: err}
		}
		return Outcome{Err: fmt.Errorf("%s: %w: %s", s.binary, err, lastLine(out))}
	}

	files, err := doublestar.Glob(os.DirFS(dir), "**/*.{srt,vtt}")
	if err != nil {
		return Outcome{Err: fmt.Errorf("find subtitles: %w", err)}
	}
	if len(files) == 0 {
		return Outcome{Reason: "no subtitles downloaded"}
	}
	sortByLanguage(files, s.languages)

	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			continue
		}
		if text := ParseSubtitles(youtube.DecodeBody(data, "")); text != "" {
			return Outcome{Payload: text, Reason: "ok (" + name + ")"}
		}
	}

	return Outcome{Reason: "subtitle files were empty"}
}

// sortByLanguage orders files like "<id>.ko.srt" by the position of their
// language in languages; SRT wins over VTT for the same language.
func sortByLanguage(files []string, languages []string) {
	rank := func(name string) (int, int) {
		ext := filepath.Ext(name)
		lang := filepath.Ext(strings.TrimSuffix(name, ext))
		lang = strings.TrimPrefix(lang, ".")

		langRank := len(languages)
		for i, l := range languages {
			if strings.EqualFold(l, lang) || strings.HasPrefix(strings.ToLower(lang), strings.ToLower(l)+"-") {
				langRank = i
				break
			}
		}
		extRank := 1
		if ext == ".srt" {
			extRank = 0
		}
		return langRank, extRank
	}

	sort.SliceStable(files, func(i, j int) bool {
		li, ei := rank(files[i])
		lj, ej := rank(files[j])
		if li != lj {
			return li < lj
		}
		return ei < ej
	})
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
