package batch

import "batchd/internal/engine"

// Cache maintenance. Every method here refuses to run during a tick.

// KVCacheCountCells returns the number of occupied cache cells.
func (x *Executor) KVCacheCountCells() int { return x.eng.KVCacheCountCells() }

// KVCacheCountTokens returns the number of tokens held across all sequences.
func (x *Executor) KVCacheCountTokens() int { return x.eng.KVCacheCountTokens() }

// Defrag compacts the cache.
func (x *Executor) Defrag() error {
	if x.inTick {
		return ErrTickInProgress
	}
	x.eng.KVCacheDefrag()
	return nil
}

// Update applies pending cache operations (shifts, copies, defrag).
func (x *Executor) Update() error {
	if x.inTick {
		return ErrTickInProgress
	}
	x.eng.KVCacheUpdate()
	return nil
}

// Clear empties the cache. All live conversations are disposed since their
// cells no longer exist.
func (x *Executor) Clear() error {
	if x.inTick {
		return ErrTickInProgress
	}
	x.disposeAll()
	x.eng.KVCacheClear()
	return nil
}

// SaveState writes an engine snapshot to path.
func (x *Executor) SaveState(path string) error {
	if x.inTick {
		return ErrTickInProgress
	}
	return x.eng.SaveState(path)
}

// LoadState restores an engine snapshot. Live conversations are disposed
// first because their sequence slots refer to the replaced cache.
func (x *Executor) LoadState(path string) error {
	if x.inTick {
		return ErrTickInProgress
	}
	for _, c := range x.convs {
		c.disposed = true
	}
	x.convs = make(map[engine.SeqID]*Conversation)
	return x.eng.LoadState(path)
}

func (x *Executor) disposeAll() {
	for _, c := range x.convs {
		c.Dispose()
	}
}
