package memorywriter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatpipe/chatpipe/internal/models"
)

func TestMergeProfile_NilCurrentSeedsFromUpdates(t *testing.T) {
	updates := models.ProfileUpdates{
		Interests: []string{"hiking"},
		Goals:     []string{"learn go"},
	}

	merged := MergeProfile(nil, updates, "user-1", "memory-writer")

	assert.Equal(t, "user-1", merged.UserID)
	assert.Equal(t, []string{"hiking"}, merged.Interests)
	assert.Equal(t, []string{"learn go"}, merged.Goals)
	assert.Equal(t, "memory-writer", merged.LastMergeSource)
}

func TestMergeProfile_UnionDedupesAndPreservesOrder(t *testing.T) {
	current := &models.UserProfile{
		UserID:    "user-1",
		Interests: []string{"hiking", "reading"},
	}
	updates := models.ProfileUpdates{
		Interests: []string{"reading", "cooking"},
	}

	merged := MergeProfile(current, updates, "user-1", "memory-writer")

	assert.Equal(t, []string{"hiking", "reading", "cooking"}, merged.Interests)
}

func TestMergeProfile_PersonalPreferencesReplacedNotUnioned(t *testing.T) {
	current := &models.UserProfile{
		UserID:              "user-1",
		PersonalPreferences: []string{"prefers verbose answers"},
	}
	updates := models.ProfileUpdates{
		PersonalPreferences: []string{"prefers concise answers"},
	}

	merged := MergeProfile(current, updates, "user-1", "memory-writer")

	assert.Equal(t, []string{"prefers concise answers"}, merged.PersonalPreferences)
}

func TestMergeProfile_PersonalPreferencesKeptWhenNoNewSignal(t *testing.T) {
	current := &models.UserProfile{
		UserID:              "user-1",
		PersonalPreferences: []string{"prefers concise answers"},
	}

	merged := MergeProfile(current, models.ProfileUpdates{}, "user-1", "memory-writer")

	assert.Equal(t, []string{"prefers concise answers"}, merged.PersonalPreferences)
}

func TestMergeProfile_DislikeRemovesContradictingInterest(t *testing.T) {
	current := &models.UserProfile{
		UserID:    "user-1",
		Interests: []string{"cilantro", "hiking"},
	}
	updates := models.ProfileUpdates{
		Dislikes: []string{"cilantro"},
	}

	merged := MergeProfile(current, updates, "user-1", "memory-writer")

	assert.Equal(t, []string{"hiking"}, merged.Interests)
	assert.Equal(t, []string{"cilantro"}, merged.Dislikes)
}

func TestMergeProfile_NewInterestContradictingExistingDislikeIsDropped(t *testing.T) {
	current := &models.UserProfile{
		UserID:   "user-1",
		Dislikes: []string{"cilantro"},
	}
	updates := models.ProfileUpdates{
		Interests: []string{"cilantro", "hiking"},
	}

	merged := MergeProfile(current, updates, "user-1", "memory-writer")

	assert.Equal(t, []string{"hiking"}, merged.Interests)
	assert.Equal(t, []string{"cilantro"}, merged.Dislikes)
}

func TestMergeProfile_EmptyUpdatesAreNoOp(t *testing.T) {
	current := &models.UserProfile{
		UserID:    "user-1",
		Interests: []string{"hiking"},
		Knowledge: []string{"go"},
	}

	merged := MergeProfile(current, models.ProfileUpdates{}, "user-1", "memory-writer")

	assert.Equal(t, current.Interests, merged.Interests)
	assert.Equal(t, current.Knowledge, merged.Knowledge)
}

func TestUnionDedup(t *testing.T) {
	cases := []struct {
		name     string
		existing []string
		incoming []string
		want     []string
	}{
		{"both empty", nil, nil, []string{}},
		{"incoming empty returns existing unchanged", []string{"a"}, nil, []string{"a"}},
		{"existing empty returns incoming deduped", nil, []string{"a", "a"}, []string{"a"}},
		{"dedupes across both", []string{"a", "b"}, []string{"b", "c"}, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := unionDedup(tc.existing, tc.incoming)
			if tc.existing == nil && tc.incoming == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
