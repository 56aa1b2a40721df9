package ops

import (
	"sync/atomic"

	"github.com/yanun0323/logs"
)

// Holder keeps the live config for readers on hot paths.
type Holder struct {
	v atomic.Value // Config
}

// NewHolder stores the initial config.
func NewHolder(cfg Config) *Holder {
	h := &Holder{}
	h.v.Store(cfg)
	return h
}

// Load returns the current config.
func (h *Holder) Load() Config {
	return h.v.Load().(Config)
}

// Reload reads path again and swaps the config in when it is valid. The
// previous config stays live on error.
func (h *Holder) Reload(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		logs.Warnf("ops: reload %s rejected: %v", path, err)
		return h.Load(), err
	}
	h.v.Store(cfg)
	logs.Infof("ops: reloaded %s", path)
	return cfg, nil
}
