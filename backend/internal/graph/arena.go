package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// IDArena maps batch-local node ids to freshly minted stable ids and back.
// One arena lives for exactly one compilation.
type IDArena struct {
	toStable map[string]string
	toLocal  map[string]string
}

// NewIDArena creates an empty arena sized for n nodes
func NewIDArena(n int) *IDArena {
	return &IDArena{
		toStable: make(map[string]string, n),
		toLocal:  make(map[string]string, n),
	}
}

// Mint assigns a new stable id to localID. A local id may be minted once.
func (a *IDArena) Mint(localID string) (string, error) {
	if _, exists := a.toStable[localID]; exists {
		return "", fmt.Errorf("duplicate local id %q", localID)
	}
	stable := uuid.NewString()
	a.toStable[localID] = stable
	a.toLocal[stable] = localID
	return stable, nil
}

// Stable resolves a local id
func (a *IDArena) Stable(localID string) (string, bool) {
	s, ok := a.toStable[localID]
	return s, ok
}

// Local resolves a stable id back to the id the batch used
func (a *IDArena) Local(stableID string) (string, bool) {
	l, ok := a.toLocal[stableID]
	return l, ok
}

// Len returns the number of minted ids
func (a *IDArena) Len() int {
	return len(a.toStable)
}
