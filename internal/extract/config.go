package extract

import (
	"fmt"
	"time"

	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

const (
	StrategyCaptions  = "captions"
	StrategyWatchPage = "watchpage"
	StrategyTimedText = "timedtext"
	StrategyYtDlp     = "ytdlp"
)

type BreakerConfig struct {
	Enabled       bool `yaml:"enabled"`
	CircuitConfig `yaml:",inline"`
}

type Config struct {
	// Strategies lists the enabled strategies in the order they are tried.
	Strategies        []string      `yaml:"strategies"`
	Languages         []string      `yaml:"languages"`
	FallbackLanguages []string      `yaml:"fallback_languages"`
	CaptionsTimeout   time.Duration `yaml:"captions_timeout"`
	WatchPageTimeout  time.Duration `yaml:"watchpage_timeout"`
	TimedTextTimeout  time.Duration `yaml:"timedtext_timeout"`
	YtDlpTimeout      time.Duration `yaml:"ytdlp_timeout"`
	YtDlpBinary       string        `yaml:"ytdlp_binary"`
	CircuitBreaker    BreakerConfig `yaml:"circuit_breaker"`
}

func DefaultConfig() Config {
	return Config{
		Strategies:        []string{StrategyCaptions, StrategyWatchPage, StrategyTimedText, StrategyYtDlp},
		Languages:         []string{"ko", "en", "en-US", "en-GB"},
		FallbackLanguages: []string{"ko", "en"},
		CaptionsTimeout:   20 * time.Second,
		WatchPageTimeout:  30 * time.Second,
		TimedTextTimeout:  20 * time.Second,
		YtDlpTimeout:      90 * time.Second,
		YtDlpBinary:       "yt-dlp",
		CircuitBreaker: BreakerConfig{
			Enabled:       true,
			CircuitConfig: DefaultCircuitConfig(),
		},
	}
}

// NewDefaultEngine builds the configured chain against client. run executes
// yt-dlp; nil means ExecRunner.
func NewDefaultEngine(client *youtube.Client, cfg Config, run CommandRunner) (*Engine, error) {
	strategies, err := BuildStrategies(client, cfg, run)
	if err != nil {
		return nil, err
	}

	var opts []EngineOption
	if cfg.CircuitBreaker.Enabled {
		opts = append(opts, WithCircuitBreakers(cfg.CircuitBreaker.CircuitConfig))
	}
	return NewEngine(strategies, opts...), nil
}

func BuildStrategies(client *youtube.Client, cfg Config, run CommandRunner) ([]Strategy, error) {
	defaults := DefaultConfig()
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = defaults.Strategies
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = defaults.Languages
	}
	if len(cfg.FallbackLanguages) == 0 {
		cfg.FallbackLanguages = defaults.FallbackLanguages
	}
	if cfg.YtDlpBinary == "" {
		cfg.YtDlpBinary = defaults.YtDlpBinary
	}
	if run == nil {
		run = ExecRunner
	}

	strategies := make([]Strategy, 0, len(cfg.Strategies))
	seen := make(map[string]bool, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		if seen[name] {
			return nil, fmt.Errorf("strategy %q listed twice", name)
		}
		seen[name] = true

		switch name {
		case StrategyCaptions:
			strategies = append(strategies, NewCaptionsStrategy(client, cfg.Languages, orDuration(cfg.CaptionsTimeout, defaults.CaptionsTimeout)))
		case StrategyWatchPage:
			strategies = append(strategies, NewWatchPageStrategy(client, orDuration(cfg.WatchPageTimeout, defaults.WatchPageTimeout)))
		case StrategyTimedText:
			strategies = append(strategies, NewTimedTextStrategy(client, cfg.FallbackLanguages, orDuration(cfg.TimedTextTimeout, defaults.TimedTextTimeout)))
		case StrategyYtDlp:
			strategies = append(strategies, NewYtDlpStrategy(cfg.YtDlpBinary, cfg.FallbackLanguages, orDuration(cfg.YtDlpTimeout, defaults.YtDlpTimeout), run))
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return strategies, nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
