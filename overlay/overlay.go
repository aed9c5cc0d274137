// Package overlay persists the floating transcript surface's last position
// and visibility, so a reopened surface lands where the user left it.
package overlay

import (
	"encoding/json"
	"fmt"
	"time"

	"meetscribe/kv"
)

// TTL bounds how long a saved state stays meaningful. Stale state is
// discarded and removed rather than restored.
const TTL = 30 * time.Minute

const storageKey = "overlayState"

// State is the persisted overlay geometry.
type State struct {
	X       int   `json:"x"`
	Y       int   `json:"y"`
	Visible bool  `json:"visible"`
	SavedAt int64 `json:"savedAt"` // unix milliseconds
}

// Keeper loads and saves overlay state through the kv layer.
type Keeper struct {
	kv  kv.Store
	now func() time.Time
}

func NewKeeper(kvStore kv.Store) *Keeper {
	return &Keeper{kv: kvStore, now: time.Now}
}

// Save stamps and persists the state.
func (k *Keeper) Save(s State) error {
	s.SavedAt = k.now().UnixMilli()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode overlay state: %w", err)
	}
	if err := k.kv.Set(storageKey, data); err != nil {
		return fmt.Errorf("persist overlay state: %w", err)
	}
	return nil
}

// Load returns the saved state, or nil when none exists or the saved state
// is older than TTL. Stale and unreadable state is removed.
func (k *Keeper) Load() (*State, error) {
	data, err := k.kv.Get(storageKey)
	if err != nil {
		return nil, fmt.Errorf("load overlay state: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		k.kv.Remove(storageKey)
		return nil, nil
	}
	age := k.now().Sub(time.UnixMilli(s.SavedAt))
	if age > TTL || age < 0 {
		k.kv.Remove(storageKey)
		return nil, nil
	}
	return &s, nil
}

// Clear drops any saved state.
func (k *Keeper) Clear() error {
	return k.kv.Remove(storageKey)
}
