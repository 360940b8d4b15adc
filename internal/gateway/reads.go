package gateway

import (
	"context"
	"time"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/models"
	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
)

// AnswerSummary is one peer answer with its endorsement count. TeacherNote is
// only populated in teacher projections.
type AnswerSummary struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	QuestionID    string    `json:"question_id"`
	AttemptNumber int       `json:"attempt_number"`
	Value         string    `json:"value"`
	Reasoning     string    `json:"reasoning,omitempty"`
	TeacherNote   string    `json:"teacher_note,omitempty"`
	VoteCount     int       `json:"vote_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ConsensusReport is the answer-value distribution for one question.
type ConsensusReport struct {
	QuestionID   string         `json:"question_id"`
	Total        int            `json:"total"`
	Distribution map[string]int `json:"distribution"`
}

// QuestionActivity summarises class activity on one question.
type QuestionActivity struct {
	QuestionID   string `json:"question_id"`
	AnswerCount  int    `json:"answer_count"`
	StudentCount int    `json:"student_count"`
}

// RosterEntry is one class member with their latest heartbeat.
type RosterEntry struct {
	Username  string     `json:"username"`
	IsTeacher bool       `json:"is_teacher"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
}

// LeaderboardEntry ranks one student by earned badges.
type LeaderboardEntry struct {
	Username   string `json:"username"`
	BadgeCount int    `json:"badge_count"`
}

// PeerAnswers returns every answer to a question with vote counts. The
// unfiltered aggregate is cached once; the teacher-only note is stripped per
// request for student and anonymous callers.
func (g *Gateway) PeerAnswers(ctx context.Context, identity auth.Identity, questionID string) ([]AnswerSummary, error) {
	value, err := g.cache.GetOrCompute(ctx, answersKey(questionID), g.ttl, func(ctx context.Context) (any, error) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var answers []models.Answer
		queryErr := g.db.WithContext(ctx).
			Preload("Votes").
			Where("question_id = ?", questionID).
			Order("created_at ASC").
			Find(&answers).Error
		if queryErr != nil {
			return nil, classify("peer_answers", queryErr)
		}
		classify("peer_answers", nil)

		summaries := make([]AnswerSummary, 0, len(answers))
		for _, a := range answers {
			summaries = append(summaries, AnswerSummary{
				ID:            a.ID,
				Username:      a.Username,
				QuestionID:    a.QuestionID,
				AttemptNumber: a.AttemptNumber,
				Value:         a.Value,
				Reasoning:     a.Reasoning,
				TeacherNote:   a.TeacherNote,
				VoteCount:     len(a.Votes),
				CreatedAt:     a.CreatedAt,
				UpdatedAt:     a.UpdatedAt,
			})
		}
		return summaries, nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	cached, _ := value.([]AnswerSummary)
	return projectAnswers(cached, identity), nil
}

// projectAnswers copies the cached aggregate so the shared entry is never
// mutated, dropping teacher-only fields for non-teacher callers.
func projectAnswers(answers []AnswerSummary, identity auth.Identity) []AnswerSummary {
	projected := make([]AnswerSummary, len(answers))
	copy(projected, answers)
	if identity.IsTeacher() {
		return projected
	}
	for i := range projected {
		projected[i].TeacherNote = ""
	}
	return projected
}

// Consensus returns the answer-value distribution for a question.
func (g *Gateway) Consensus(ctx context.Context, questionID string) (*ConsensusReport, error) {
	value, err := g.cache.GetOrCompute(ctx, consensusKey(questionID), g.ttl, func(ctx context.Context) (any, error) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var rows []struct {
			Value string
			Count int
		}
		queryErr := g.db.WithContext(ctx).
			Model(&models.Answer{}).
			Select("value, COUNT(*) AS count").
			Where("question_id = ?", questionID).
			Group("value").
			Scan(&rows).Error
		if queryErr != nil {
			return nil, classify("consensus", queryErr)
		}
		classify("consensus", nil)

		report := &ConsensusReport{
			QuestionID:   questionID,
			Distribution: make(map[string]int, len(rows)),
		}
		for _, row := range rows {
			report.Distribution[row.Value] = row.Count
			report.Total += row.Count
		}
		return report, nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	report, _ := value.(*ConsensusReport)
	return report, nil
}

// ClassPeerData returns per-question activity for a class section.
func (g *Gateway) ClassPeerData(ctx context.Context, classID string) ([]QuestionActivity, error) {
	value, err := g.cache.GetOrCompute(ctx, classPeersKey(classID), g.ttl, func(ctx context.Context) (any, error) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var rows []QuestionActivity
		queryErr := g.db.WithContext(ctx).
			Model(&models.Answer{}).
			Select("question_id, COUNT(*) AS answer_count, COUNT(DISTINCT username) AS student_count").
			Where("class_section_id = ?", classID).
			Group("question_id").
			Order("question_id ASC").
			Scan(&rows).Error
		if queryErr != nil {
			return nil, classify("class_peers", queryErr)
		}
		classify("class_peers", nil)
		return rows, nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	rows, _ := value.([]QuestionActivity)
	return rows, nil
}

// ClassRoster returns the member list for a class section. Only the teacher
// who owns the section may read it; ownership is checked against the row-store
// on every request, never against a cached copy.
func (g *Gateway) ClassRoster(ctx context.Context, identity auth.Identity, classID string) ([]RosterEntry, error) {
	section, err := g.loadClassSection(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !identity.IsTeacher() || section.TeacherUsername != identity.Username {
		return nil, appErrors.ErrForbidden.WithMessage("Only the class teacher may view the roster")
	}

	value, err := g.cache.GetOrCompute(ctx, classRosterKey(classID), g.ttl, func(ctx context.Context) (any, error) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var profiles []models.Profile
		queryErr := g.db.WithContext(ctx).
			Where("class_section_id = ?", classID).
			Order("username ASC").
			Find(&profiles).Error
		if queryErr != nil {
			return nil, classify("class_roster", queryErr)
		}

		usernames := make([]string, 0, len(profiles))
		for _, p := range profiles {
			usernames = append(usernames, p.Username)
		}

		lastSeen := make(map[string]time.Time, len(usernames))
		if len(usernames) > 0 {
			var activity []models.UserActivity
			queryErr = g.db.WithContext(ctx).
				Where("username IN ?", usernames).
				Find(&activity).Error
			if queryErr != nil {
				return nil, classify("class_roster", queryErr)
			}
			for _, a := range activity {
				lastSeen[a.Username] = a.LastSeen
			}
		}
		classify("class_roster", nil)

		roster := make([]RosterEntry, 0, len(profiles))
		for _, p := range profiles {
			entry := RosterEntry{
				Username:  p.Username,
				IsTeacher: p.IsTeacher,
				JoinedAt:  p.CreatedAt,
			}
			if seen, ok := lastSeen[p.Username]; ok {
				entry.LastSeen = &seen
			}
			roster = append(roster, entry)
		}
		return roster, nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	roster, _ := value.([]RosterEntry)
	return roster, nil
}

// Leaderboard ranks a class section's students by badge count.
func (g *Gateway) Leaderboard(ctx context.Context, classID string) ([]LeaderboardEntry, error) {
	value, err := g.cache.GetOrCompute(ctx, classLeaderboardKey(classID), g.ttl, func(ctx context.Context) (any, error) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var rows []LeaderboardEntry
		queryErr := g.db.WithContext(ctx).
			Model(&models.Badge{}).
			Select("username, COUNT(*) AS badge_count").
			Where("class_section_id = ?", classID).
			Group("username").
			Order("badge_count DESC, username ASC").
			Scan(&rows).Error
		if queryErr != nil {
			return nil, classify("leaderboard", queryErr)
		}
		classify("leaderboard", nil)
		return rows, nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	rows, _ := value.([]LeaderboardEntry)
	return rows, nil
}

// ProfileProgress returns lesson completion for a profile. Only the owner or a
// teacher may read it.
func (g *Gateway) ProfileProgress(ctx context.Context, identity auth.Identity, username string) ([]models.Progress, error) {
	if !identity.Owns(username) && !identity.IsTeacher() {
		return nil, appErrors.ErrForbidden.WithMessage("Progress is visible to its owner and teachers only")
	}

	value, err := g.cache.GetOrCompute(ctx, progressKey(username), g.ttl, func(ctx context.Context) (any, error) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var rows []models.Progress
		queryErr := g.db.WithContext(ctx).
			Where("username = ?", username).
			Order("lesson_id ASC").
			Find(&rows).Error
		if queryErr != nil {
			return nil, classify("profile_progress", queryErr)
		}
		classify("profile_progress", nil)
		return rows, nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	rows, _ := value.([]models.Progress)
	return rows, nil
}

// loadClassSection reads a class section directly from the row-store, bypassing
// the cache so authorization decisions never run on stale data.
func (g *Gateway) loadClassSection(ctx context.Context, classID string) (*models.ClassSection, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var section models.ClassSection
	if err := g.db.WithContext(ctx).First(&section, "id = ?", classID).Error; err != nil {
		return nil, appErrors.FromError(classify("class_section", err))
	}
	classify("class_section", nil)
	return &section, nil
}
