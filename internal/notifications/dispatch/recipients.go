package dispatch

import (
	"context"

	"telloo/internal/types"
)

// recipientSet accumulates recipient user IDs, preserving insertion order
// while deduplicating and always excluding the triggering actor.
type recipientSet struct {
	triggeredBy string
	seen        map[string]struct{}
	ids         []string
}

func newRecipientSet(triggeredBy string) *recipientSet {
	return &recipientSet{
		triggeredBy: triggeredBy,
		seen:        make(map[string]struct{}),
	}
}

// add appends a user ID unless it is empty, the actor, or already present.
func (s *recipientSet) add(userID string) {
	if userID == "" || userID == s.triggeredBy {
		return
	}
	if _, ok := s.seen[userID]; ok {
		return
	}
	s.seen[userID] = struct{}{}
	s.ids = append(s.ids, userID)
}

func (s *recipientSet) addAll(userIDs []string) {
	for _, id := range userIDs {
		s.add(id)
	}
}

// computeRecipients applies the per-event recipient rules and returns the
// deduplicated, actor-excluded candidate list (before preference filtering):
//
//   - new_comment: post author plus every distinct prior commenter
//   - status_change: post author only
//   - new_post: board owner plus every board admin or super_admin
//   - new_vote: post author only
//
// An anonymous post (empty author) simply contributes no author recipient.
func (d *Dispatcher) computeRecipients(ctx context.Context, event types.DispatchEvent, post *types.Post) ([]string, error) {
	set := newRecipientSet(event.TriggeredBy)

	switch event.Type {
	case types.EventNewComment:
		set.add(post.AuthorID)
		commenters, err := d.store.ListCommenterIDs(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		set.addAll(commenters)

	case types.EventStatusChange:
		set.add(post.AuthorID)

	case types.EventNewPost:
		set.add(post.Board.OwnerID)
		admins, err := d.store.ListBoardAdminIDs(ctx, post.BoardID)
		if err != nil {
			return nil, err
		}
		set.addAll(admins)

	case types.EventNewVote:
		set.add(post.AuthorID)
	}

	return set.ids, nil
}

// filterByPreference drops candidates whose stored preference explicitly
// opts out of the event's category. Candidates without a preference record
// are kept (opt-out model; silence means notify).
func (d *Dispatcher) filterByPreference(ctx context.Context, event types.EventType, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prefs, err := d.store.GetPreferences(ctx, candidates)
	if err != nil {
		return nil, err
	}

	eligible := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if prefs[id].Allows(event) {
			eligible = append(eligible, id)
		}
	}
	return eligible, nil
}
