package scoringconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

// Settings file keys
const (
	keyKeywords = "important_keywords"
	keySenders  = "important_senders"
	keyWeights  = "importance_weights"
)

type loaded struct {
	cfg core.ScoringConfig
	err error
}

// FileProvider serves the scoring configuration from a settings file (JSON or
// YAML). Each reload publishes a new immutable core.ScoringConfig.
type FileProvider struct {
	path    string
	v       *viper.Viper
	logger  *zap.Logger
	current atomic.Pointer[loaded]

	mu        sync.Mutex
	listeners []func(core.ScoringConfig)
	onReload  func(result string)
}

// NewFileProvider reads path once. A missing or malformed file yields defaults
// and a CONFIG error on Load, never a constructor failure.
func NewFileProvider(path string, logger *zap.Logger) *FileProvider {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}

	p := &FileProvider{path: path, v: v, logger: logger}
	p.Reload()
	return p
}

// Load returns the current configuration and the error recorded while reading it
func (p *FileProvider) Load() (core.ScoringConfig, error) {
	l := p.current.Load()
	return l.cfg, l.err
}

// OnChange registers fn to run with every configuration published by a file change
func (p *FileProvider) OnChange(fn func(core.ScoringConfig)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// OnReload registers a hook that receives "ok" or "fallback" for each reload
func (p *FileProvider) OnReload(fn func(result string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
}

// Watch starts watching the settings file for changes
func (p *FileProvider) Watch() {
	p.v.OnConfigChange(func(e fsnotify.Event) {
		p.logger.Info("Scoring settings changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		cfg := p.Reload()

		p.mu.Lock()
		listeners := append([]func(core.ScoringConfig){}, p.listeners...)
		p.mu.Unlock()
		for _, fn := range listeners {
			fn(cfg)
		}
	})
	p.v.WatchConfig()
	p.logger.Info("Watching scoring settings", zap.String("file", p.path))
}

// Reload re-reads the settings file and publishes the result
func (p *FileProvider) Reload() core.ScoringConfig {
	var cfg core.ScoringConfig
	var err error
	if readErr := p.v.ReadInConfig(); readErr != nil {
		cfg = core.DefaultScoringConfig()
		err = core.NewError(core.KindConfig, "load_scoring_config", "", fmt.Errorf("read %s: %w", p.path, readErr))
	} else {
		cfg, err = Build(p.v.AllSettings())
	}

	p.current.Store(&loaded{cfg: cfg, err: err})

	result := "ok"
	if err != nil {
		result = "fallback"
		p.logger.Warn("Using default scoring values", zap.String("file", p.path), zap.Error(err))
	}
	p.mu.Lock()
	hook := p.onReload
	p.mu.Unlock()
	if hook != nil {
		hook(result)
	}
	return cfg
}

// Build converts raw settings into a scoring configuration. Missing or
// malformed values fall back to defaults key by key; the returned error lists them.
func Build(settings map[string]interface{}) (core.ScoringConfig, error) {
	var problems []error

	keywords := core.DefaultKeywords()
	if raw, ok := settings[keyKeywords]; ok {
		if list, err := cast.ToStringSliceE(raw); err == nil {
			keywords = list
		} else {
			problems = append(problems, fmt.Errorf("%s: %w", keyKeywords, err))
		}
	}

	var senders []string
	if raw, ok := settings[keySenders]; ok {
		if list, err := cast.ToStringSliceE(raw); err == nil {
			senders = list
		} else {
			problems = append(problems, fmt.Errorf("%s: %w", keySenders, err))
		}
	}

	weights := core.DefaultWeights()
	if raw, ok := settings[keyWeights]; ok {
		table, err := cast.ToStringMapE(raw)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", keyWeights, err))
		} else {
			fields := map[string]*int{
				"subject_keyword":  &weights.SubjectKeyword,
				"body_keyword":     &weights.BodyKeyword,
				"important_sender": &weights.ImportantSender,
				"question_mark":    &weights.QuestionMark,
				"direct_message":   &weights.DirectMessage,
				"email_length":     &weights.EmailLength,
			}
			for name, dst := range fields {
				v, ok := table[name]
				if !ok {
					continue
				}
				n, err := toWeight(v)
				if err != nil {
					problems = append(problems, fmt.Errorf("%s.%s: %w", keyWeights, name, err))
					continue
				}
				*dst = n
			}
		}
	}

	cfg := core.NewScoringConfig(keywords, senders, weights)
	if len(problems) > 0 {
		return cfg, core.NewError(core.KindConfig, "load_scoring_config", "", errors.Join(problems...))
	}
	return cfg, nil
}

func toWeight(v interface{}) (int, error) {
	switch v.(type) {
	case bool, nil:
		return 0, fmt.Errorf("not a number: %v", v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not a whole number: %v", v)
	}
	return int(f), nil
}
