package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/beamterm/internal/logger"
)

// HostConfig holds host-specific settings persisted in ~/.beamterm/host.yaml,
// covering every tunable the core otherwise takes as a constructor
// parameter: grid sizing, synchronizer pacing, transport/ICE, and the
// join-authorization policy.
type HostConfig struct {
	HistoryCap      int    `yaml:"history_cap,omitempty"`
	Cols            int    `yaml:"cols,omitempty"`
	ViewportRows    int    `yaml:"viewport_rows,omitempty"`
	PrefetchBefore  int    `yaml:"prefetch_before,omitempty"`
	PrefetchAfter   int    `yaml:"prefetch_after,omitempty"`
	HeartbeatMillis int    `yaml:"heartbeat_ms,omitempty"`
	HighWatermark   int    `yaml:"high_watermark,omitempty"`
	PredictionGrace string `yaml:"prediction_grace,omitempty"` // e.g. "2s"

	ConnectionMode string `yaml:"connection_mode,omitempty"` // "relay" (default), "p2p", "p2p_only", "direct"

	// AuthPolicy is "allow" (AllowAllAuthorizer) or "ask" (PromptAuthorizer);
	// any other value, "deny" included, also selects AllowAllAuthorizer. The
	// host's --passcode flag selects PasscodeAuthorizer whatever this says.
	AuthPolicy string     `yaml:"auth_policy,omitempty"`
	AllowKeys  []AllowKey `yaml:"allow_keys,omitempty"`

	ICEServers []ICEServer `yaml:"ice_servers,omitempty"`

	DirectListenAddr string `yaml:"direct_listen_addr,omitempty"`
	DirectTLS        bool   `yaml:"direct_tls,omitempty"`

	Debug bool `yaml:"debug,omitempty"`
}

// ICEServer is a STUN/TURN server configuration for WebRTC negotiation.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

// AllowKey is one entry in the join-authorization allow-list: a session may
// match on passcode, label, or both.
type AllowKey struct {
	Passcode string `yaml:"passcode,omitempty"`
	Label    string `yaml:"label,omitempty"`
}

// Defaults returns the zero-config HostConfig the core's own constructors
// already default to, so a missing host.yaml is never a startup error.
func Defaults() HostConfig {
	return HostConfig{
		HistoryCap:      10000,
		Cols:            80,
		ViewportRows:    24,
		PrefetchBefore:  200,
		PrefetchAfter:   200,
		HeartbeatMillis: 1000,
		HighWatermark:   512,
		PredictionGrace: "2s",
		ConnectionMode:  "relay",
		AuthPolicy:      "allow",
	}
}

// PredictionGraceDuration parses PredictionGrace, falling back to 2s on an
// empty or malformed value.
func (c *HostConfig) PredictionGraceDuration() time.Duration {
	if c.PredictionGrace == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(c.PredictionGrace)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// LoadHostConfig reads host.yaml from dir, merging over Defaults(). A
// missing file is not an error.
func LoadHostConfig(dir string) (*HostConfig, error) {
	cfg := Defaults()
	path := filepath.Join(dir, "host.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveHostConfig writes host.yaml to dir.
func SaveHostConfig(dir string, cfg *HostConfig) error {
	os.MkdirAll(dir, 0755)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "host.yaml"), data, 0644)
}

// MatchesAllowList reports whether passcode or label match any entry; an
// empty allow-list matches nothing (the caller decides what that means for
// its policy).
func (c *HostConfig) MatchesAllowList(passcode, label string) bool {
	for _, k := range c.AllowKeys {
		if k.Passcode != "" && k.Passcode == passcode {
			return true
		}
		if k.Label != "" && strings.EqualFold(k.Label, label) {
			return true
		}
	}
	return false
}

// Watcher live-reloads the allow-list from host.yaml on every write, so
// later calls to AllowKeys and Config see the new entries without a restart;
// no authorizer in internal/hostrt consults the allow-list. Only AllowKeys are
// re-read; every other field is fixed at process start since most of them
// (cols, history_cap, connection_mode) are wired into already-running
// components that can't be resized from outside.
type Watcher struct {
	mu  sync.Mutex
	cfg *HostConfig
	w   *fsnotify.Watcher
}

// NewWatcher loads dir/host.yaml and begins watching it for writes. Call
// Close when done.
func NewWatcher(dir string) (*Watcher, error) {
	cfg, err := LoadHostConfig(dir)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "host.yaml")
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	watcher := &Watcher{cfg: cfg, w: fw}
	go watcher.run(path)
	return watcher, nil
}

func (w *Watcher) run(path string) {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Name != path || ev.Op&fsnotify.Write == 0 {
				continue
			}
			cfg, err := LoadHostConfig(filepath.Dir(path))
			if err != nil {
				logger.Warn("config: reload failed, keeping previous allow-list", "err", err)
				continue
			}
			w.mu.Lock()
			w.cfg.AllowKeys = cfg.AllowKeys
			w.mu.Unlock()
			logger.Info("config: allow-list reloaded", "entries", len(cfg.AllowKeys))
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			logger.Warn("config: watch error", "err", err)
		}
	}
}

// AllowKeys returns the current, possibly live-reloaded, allow-list.
func (w *Watcher) AllowKeys() []AllowKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]AllowKey, len(w.cfg.AllowKeys))
	copy(out, w.cfg.AllowKeys)
	return out
}

// Config returns a copy of the config as currently loaded (allow-list may
// have been live-reloaded; everything else is fixed at load time).
func (w *Watcher) Config() HostConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg := *w.cfg
	cfg.AllowKeys = append([]AllowKey(nil), w.cfg.AllowKeys...)
	return cfg
}

func (w *Watcher) Close() error {
	return w.w.Close()
}
