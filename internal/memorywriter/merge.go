// merge.go implements the pure profile-merge function:
// (UserProfile, ProfileUpdates) → UserProfile, with list fields as
// deduplicated unions and a dislike removing a matching interest. A
// matching dislike is never removed by an interest.
package memorywriter

import (
	"time"

	"github.com/chatpipe/chatpipe/internal/models"
)

// MergeProfile combines updates into current, returning a new UserProfile.
// current may be nil (no prior profile) for a user's first extraction.
func MergeProfile(current *models.UserProfile, updates models.ProfileUpdates, userID, source string) *models.UserProfile {
	base := models.UserProfile{UserID: userID}
	if current != nil {
		base = *current
	}

	interests := unionDedup(base.Interests, updates.Interests)
	dislikes := unionDedup(base.Dislikes, updates.Dislikes)
	interests, dislikes = resolveContradictions(interests, dislikes)

	return &models.UserProfile{
		UserID:               userID,
		OutputPreferences:    unionDedup(base.OutputPreferences, updates.OutputPreferences),
		PersonalPreferences:  replaceNewer(updates.PersonalPreferences, base.PersonalPreferences),
		AssistantPreferences: unionDedup(base.AssistantPreferences, updates.AssistantPreferences),
		Knowledge:            unionDedup(base.Knowledge, updates.Knowledge),
		Interests:            interests,
		Dislikes:             dislikes,
		FamilyAndFriends:     unionDedup(base.FamilyAndFriends, updates.FamilyAndFriends),
		WorkProfile:          unionDedup(base.WorkProfile, updates.WorkProfile),
		Goals:                unionDedup(base.Goals, updates.Goals),
		LastUpdated:          time.Now(),
		LastMergeSource:      source,
	}
}

// unionDedup returns the deduplicated set-union of existing and incoming,
// preserving existing's order and appending genuinely new entries — the
// default "updates are additive" rule for most profile fields.
func unionDedup(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// replaceNewer implements "newer personal_preferences replace older":
// when the extraction produced new values, they win outright rather than
// unioning with stale ones (a user who now prefers concise answers
// shouldn't keep "prefers verbose answers" around).
func replaceNewer(incoming, existing []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	return unionDedup(nil, incoming)
}

// resolveContradictions removes any entry that appears in both interests
// and dislikes, keeping it only in dislikes: an explicit negative signal
// overrides an inferred positive one, so a dislike overlapping an interest
// removes the interest whichever of the two was recorded first.
func resolveContradictions(interests, dislikes []string) (out []string, keptDislikes []string) {
	dislikeSet := make(map[string]struct{}, len(dislikes))
	for _, d := range dislikes {
		dislikeSet[d] = struct{}{}
	}
	out = make([]string, 0, len(interests))
	for _, i := range interests {
		if _, contradicted := dislikeSet[i]; contradicted {
			continue
		}
		out = append(out, i)
	}
	return out, dislikes
}
