package tiercache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Backends and the tiered cache call them on hot paths.
type Hooks interface {
	// A store call failed and was folded into a false result.
	// op is the cache operation, e.g. "get", "set_multiple", "increment".
	BackendError(backend, op string, err error)

	// An entry was deleted by the backend on read.
	// reason ∈ {"corrupt", "value_decode", "type"}
	SelfHeal(backend, storageKey, reason string)

	// A tier reported failure inside a tiered fan-out.
	TierFailed(tier int, backend, op string)

	// count keys found in tier were copied into the tiers above it.
	Promoted(tier, count int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) SelfHeal(string, string, string)    {}
func (NopHooks) TierFailed(int, string, string)     {}
func (NopHooks) Promoted(int, int)                  {}
