package collaboration

import (
	"sort"
	"sync"
	"time"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// PresencePatch is a shallow partial update to a collaborator's presence.
// Nil fields are left untouched. CursorFieldID set to the empty string
// clears the field focus (blur).
type PresencePatch struct {
	UserName      *string
	Avatar        *string
	CurrentStep   *int
	CursorStepID  *string
	CursorFieldID *string
	IsActive      *bool
}

// PresenceTracker maintains the live presence record for every connected
// user on one estimate. Updates are idempotent merges, not replacements.
// A user whose presence has not been refreshed within the heartbeat timeout
// is marked inactive rather than removed, preserving history attribution.
type PresenceTracker struct {
	mu           sync.RWMutex
	participants map[string]*models.CollaboratorPresence
	timeout      time.Duration
	now          func() time.Time
}

// NewPresenceTracker creates a tracker with the given heartbeat timeout
func NewPresenceTracker(timeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		participants: make(map[string]*models.CollaboratorPresence),
		timeout:      timeout,
		now:          time.Now,
	}
}

// Join registers a user's presence, replacing any stale record for the same
// user. Returns a copy of the stored presence.
func (t *PresenceTracker) Join(userID string, profile models.CollaboratorPresence) models.CollaboratorPresence {
	t.mu.Lock()
	defer t.mu.Unlock()

	presence := profile
	presence.UserID = userID
	presence.IsActive = true
	presence.LastSeen = t.now()
	if presence.CurrentStep == 0 {
		presence.CurrentStep = 1
	}
	t.participants[userID] = &presence
	return presence
}

// Update applies a shallow patch to a user's presence and refreshes the
// heartbeat. Unknown users are ignored: presence updates are fire-and-forget
// and must never fail the caller.
func (t *PresenceTracker) Update(userID string, patch PresencePatch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.participants[userID]
	if !ok {
		return
	}

	if patch.UserName != nil {
		p.UserName = *patch.UserName
	}
	if patch.Avatar != nil {
		p.Avatar = *patch.Avatar
	}
	if patch.CurrentStep != nil {
		p.CurrentStep = *patch.CurrentStep
	}
	if patch.CursorStepID != nil || patch.CursorFieldID != nil {
		if p.Cursor == nil {
			p.Cursor = &models.Cursor{}
		}
		if patch.CursorStepID != nil {
			p.Cursor.StepID = *patch.CursorStepID
		}
		if patch.CursorFieldID != nil {
			// Empty string clears field focus on blur
			p.Cursor.FieldID = *patch.CursorFieldID
		}
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	} else {
		p.IsActive = true
	}
	p.LastSeen = t.now()
}

// Get returns a copy of one user's presence
func (t *PresenceTracker) Get(userID string) (models.CollaboratorPresence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.participants[userID]
	if !ok {
		return models.CollaboratorPresence{}, false
	}
	return clonePresence(p), true
}

// List returns every participant's presence, ordered by user ID for
// reproducible output
func (t *PresenceTracker) List() []models.CollaboratorPresence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.CollaboratorPresence, 0, len(t.participants))
	for _, p := range t.participants {
		out = append(out, clonePresence(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Leave removes a user's presence record
func (t *PresenceTracker) Leave(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.participants, userID)
}

// SweepInactive marks users whose heartbeat has lapsed as inactive and
// returns the IDs it flipped. Records are never removed here.
func (t *PresenceTracker) SweepInactive() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.timeout)
	var flipped []string
	for id, p := range t.participants {
		if p.IsActive && p.LastSeen.Before(cutoff) {
			p.IsActive = false
			flipped = append(flipped, id)
		}
	}
	sort.Strings(flipped)
	return flipped
}

func clonePresence(p *models.CollaboratorPresence) models.CollaboratorPresence {
	out := *p
	if p.Cursor != nil {
		cursor := *p.Cursor
		out.Cursor = &cursor
	}
	return out
}
