// Package obs reports swallowed store failures to a backend's Logger and Hooks.
package obs

import "github.com/unkn0wn-root/tiercache"

// Reporter is embedded by backends. The zero value discards everything.
type Reporter struct {
	backend string
	log     tiercache.Logger
	hooks   tiercache.Hooks
}

func New(backend string, log tiercache.Logger, hooks tiercache.Hooks) Reporter {
	if log == nil {
		log = tiercache.NopLogger{}
	}
	if hooks == nil {
		hooks = tiercache.NopHooks{}
	}
	return Reporter{backend: backend, log: log, hooks: hooks}
}

func (r Reporter) Name() string { return r.backend }

// Fail records an operational error. It always returns false so call sites
// can write `return r.Fail(...)`.
func (r Reporter) Fail(op, key string, err error) bool {
	if r.log != nil {
		f := tiercache.Fields{"backend": r.backend, "op": op, "err": err}
		if key != "" {
			f["key"] = key
		}
		r.log.Warn("cache operation failed", f)
	}
	if r.hooks != nil {
		r.hooks.BackendError(r.backend, op, err)
	}
	return false
}

// SelfHeal records that an unreadable entry was removed.
func (r Reporter) SelfHeal(key, reason string) {
	if r.log != nil {
		r.log.Debug("dropped unreadable entry", tiercache.Fields{"backend": r.backend, "key": key, "reason": reason})
	}
	if r.hooks != nil {
		r.hooks.SelfHeal(r.backend, key, reason)
	}
}

// Heal reports the outcome of deleting an unreadable entry: a failed delete
// is a "self_heal" operational error, a successful one a SelfHeal event.
func (r Reporter) Heal(key, reason string, delErr error) {
	if delErr != nil {
		r.Fail("self_heal", key, delErr)
		return
	}
	r.SelfHeal(key, reason)
}
