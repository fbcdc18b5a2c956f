// Package sloghooks writes tiercache Hooks events to a *slog.Logger, with
// sampling for the noisy ones and redacted keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	TierFailedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	tierFailedCtr atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) BackendError(backend, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.backend_error",
		"backend", backend,
		"op", op,
		"err", err)
}

func (h *Hooks) SelfHeal(backend, storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tiercache.self_heal",
		"backend", backend,
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) TierFailed(tier int, backend, op string) {
	if h.l == nil || !sample(h.opts.TierFailedEvery, &h.tierFailedCtr) {
		return
	}
	h.l.Info("tiercache.tier_failed",
		"tier", tier,
		"backend", backend,
		"op", op)
}

func (h *Hooks) Promoted(tier, count int) {
	if h.l == nil {
		return
	}
	h.l.Debug("tiercache.promoted",
		"tier", tier,
		"count", count)
}
