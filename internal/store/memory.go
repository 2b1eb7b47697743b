package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/models"
)

// UpsertSummary writes one ConversationSummary, keyed by sessionId so
// redelivery of the same message-completed event is a no-op update rather
// than a duplicate row.
func (s *Store) UpsertSummary(ctx context.Context, sum *models.ConversationSummary) error {
	// A summary without an embedding is stored with a NULL vector.
	var vec *pgvector.Vector
	if len(sum.VectorEmbedding) > 0 {
		v := pgvector.NewVector(sum.VectorEmbedding)
		vec = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_conversations (session_id, user_id, summary, themes, persons, places, user_sentiment, vector_embedding, model, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id          = EXCLUDED.user_id,
			summary          = EXCLUDED.summary,
			themes           = EXCLUDED.themes,
			persons          = EXCLUDED.persons,
			places           = EXCLUDED.places,
			user_sentiment   = EXCLUDED.user_sentiment,
			vector_embedding = EXCLUDED.vector_embedding,
			model            = EXCLUDED.model,
			ts               = EXCLUDED.ts
	`, sum.SessionID, sum.UserID, sum.Summary, sum.Themes, sum.Persons, sum.Places,
		string(sum.UserSentiment), vec, sum.Model, sum.Timestamp)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	return nil
}

// SearchSummaries runs a cosine-distance vector query scoped to one userId
// partition — a query for userId=A must never return userId=B's summaries.
// Distance is mapped to a [0,1] similarity score.
func (s *Store) SearchSummaries(ctx context.Context, userID string, queryEmbedding []float32, limit int) ([]models.ScoredConversationSummary, error) {
	vec := pgvector.NewVector(queryEmbedding)
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, user_id, summary, themes, persons, places, user_sentiment, model, ts,
		       1 - (vector_embedding <=> $2) AS similarity
		FROM memory_conversations
		WHERE user_id = $1 AND vector_embedding IS NOT NULL
		ORDER BY vector_embedding <=> $2
		LIMIT $3
	`, userID, vec, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	defer rows.Close()

	var out []models.ScoredConversationSummary
	for rows.Next() {
		var r models.ScoredConversationSummary
		var sentiment string
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.Summary, &r.Themes, &r.Persons, &r.Places,
			&sentiment, &r.Model, &r.Timestamp, &r.RelevanceScore); err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreError)
		}
		r.UserSentiment = models.Sentiment(sentiment)
		if r.RelevanceScore < 0 {
			r.RelevanceScore = 0
		}
		if r.RelevanceScore > 1 {
			r.RelevanceScore = 1
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	return out, nil
}

// GetProfile returns the UserProfile for userID, NotFound if one was never
// written or was deleted.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	p.UserID = userID
	err := s.pool.QueryRow(ctx, `
		SELECT output_preferences, personal_preferences, assistant_preferences,
		       knowledge, interests, dislikes, family_and_friends, work_profile, goals,
		       last_updated, last_merge_source
		FROM user_memories WHERE user_id = $1
	`, userID).Scan(&p.OutputPreferences, &p.PersonalPreferences, &p.AssistantPreferences,
		&p.Knowledge, &p.Interests, &p.Dislikes, &p.FamilyAndFriends, &p.WorkProfile, &p.Goals,
		&p.LastUpdated, &p.LastMergeSource)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.New(errors.ErrProfileNotFound, "user profile not found")
		}
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	return &p, nil
}

// UpsertProfile writes the merged UserProfile produced by
// internal/memorywriter/merge.go.
func (s *Store) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_memories (user_id, output_preferences, personal_preferences, assistant_preferences,
			knowledge, interests, dislikes, family_and_friends, work_profile, goals, last_updated, last_merge_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			output_preferences    = EXCLUDED.output_preferences,
			personal_preferences  = EXCLUDED.personal_preferences,
			assistant_preferences = EXCLUDED.assistant_preferences,
			knowledge             = EXCLUDED.knowledge,
			interests             = EXCLUDED.interests,
			dislikes              = EXCLUDED.dislikes,
			family_and_friends    = EXCLUDED.family_and_friends,
			work_profile          = EXCLUDED.work_profile,
			goals                 = EXCLUDED.goals,
			last_updated          = EXCLUDED.last_updated,
			last_merge_source     = EXCLUDED.last_merge_source
	`, p.UserID, p.OutputPreferences, p.PersonalPreferences, p.AssistantPreferences,
		p.Knowledge, p.Interests, p.Dislikes, p.FamilyAndFriends, p.WorkProfile, p.Goals,
		p.LastUpdated, p.LastMergeSource)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	return nil
}

// DeleteProfile removes the UserProfile document only — ConversationSummary
// records are left intact.
func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_memories WHERE user_id = $1`, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrProfileNotFound, "user profile not found")
	}
	return nil
}
