package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/models"
	"github.com/robjohncolson/statrelay/internal/realtime"
	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
	"github.com/robjohncolson/statrelay/pkg/validator"
)

// CreateProfileInput claims a display name. JoinCode optionally attaches the
// new profile to a class section.
type CreateProfileInput struct {
	Username string `json:"username" validate:"required,username"`
	JoinCode string `json:"join_code,omitempty" validate:"omitempty,max=16"`
}

// SubmitAnswerInput records one answer attempt for the calling profile.
type SubmitAnswerInput struct {
	QuestionID    string `json:"question_id" validate:"required,max=64"`
	AttemptNumber int    `json:"attempt_number" validate:"omitempty,min=1"`
	Value         string `json:"value" validate:"required,max=16"`
	Reasoning     string `json:"reasoning,omitempty"`
}

// BatchResult reports the outcome of one item in an answer batch.
type BatchResult struct {
	Index  int                 `json:"index"`
	Answer *models.Answer      `json:"answer,omitempty"`
	Error  *appErrors.AppError `json:"error,omitempty"`
}

// AwardBadgeInput attaches a badge to a profile.
type AwardBadgeInput struct {
	Username   string `json:"username" validate:"required,username"`
	BadgeType  string `json:"badge_type" validate:"required,max=32"`
	QuestionID string `json:"question_id,omitempty" validate:"omitempty,max=64"`
}

// UpdateProgressInput upserts lesson completion for the calling profile.
type UpdateProgressInput struct {
	LessonID           string `json:"lesson_id" validate:"required,max=64"`
	CompletedQuestions int    `json:"completed_questions" validate:"min=0"`
	TotalQuestions     int    `json:"total_questions" validate:"min=0"`
}

// UpdateProfileInput changes a profile's class membership.
type UpdateProfileInput struct {
	JoinCode       *string `json:"join_code,omitempty" validate:"omitempty,max=16"`
	ClassSectionID *string `json:"class_section_id,omitempty" validate:"omitempty,uuid"`
}

// CreateProfile claims a username. Teacher profiles are provisioned out of
// band, so every created profile is a student. A taken name is a conflict.
func (g *Gateway) CreateProfile(ctx context.Context, input CreateProfileInput) (*models.Profile, error) {
	if !validator.ValidUsername(input.Username) {
		return nil, appErrors.NewValidation("Username must be 3-50 letters, digits or underscores")
	}

	profile := &models.Profile{Username: input.Username}

	if input.JoinCode != "" {
		section, err := g.findSectionByJoinCode(ctx, input.JoinCode)
		if err != nil {
			if appErrors.IsKind(err, appErrors.KindNotFound) {
				return nil, appErrors.NewValidation("Unknown class join code")
			}
			return nil, err
		}
		profile.ClassSectionID = &section.ID
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.db.WithContext(opCtx).Create(profile).Error; err != nil {
		classified := classify("create_profile", err)
		if appErrors.IsKind(classified, appErrors.KindConflict) {
			return nil, appErrors.ErrConflict.WithMessage("Username is already taken").WithInternal(err)
		}
		return nil, appErrors.FromError(classified)
	}
	classify("create_profile", nil)

	if profile.ClassSectionID != nil {
		g.invalidateClass(*profile.ClassSectionID)
	}

	g.log.Info("profile created", zap.String("username", profile.Username))
	return profile, nil
}

// UpdateProfile changes class membership. The owner may move their own
// profile; a teacher may move any profile.
func (g *Gateway) UpdateProfile(ctx context.Context, identity auth.Identity, username string, input UpdateProfileInput) (*models.Profile, error) {
	if !identity.Owns(username) && !identity.IsTeacher() {
		return nil, appErrors.ErrForbidden.WithMessage("Profiles may only be changed by their owner or a teacher")
	}

	profile, err := g.loadProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	previousClass := profile.ClassSectionID

	switch {
	case input.JoinCode != nil && *input.JoinCode != "":
		section, err := g.findSectionByJoinCode(ctx, *input.JoinCode)
		if err != nil {
			if appErrors.IsKind(err, appErrors.KindNotFound) {
				return nil, appErrors.NewValidation("Unknown class join code")
			}
			return nil, err
		}
		profile.ClassSectionID = &section.ID
	case input.ClassSectionID != nil:
		if *input.ClassSectionID == "" {
			profile.ClassSectionID = nil
		} else {
			if _, err := g.loadClassSection(ctx, *input.ClassSectionID); err != nil {
				return nil, err
			}
			profile.ClassSectionID = input.ClassSectionID
		}
	default:
		return profile, nil
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.db.WithContext(opCtx).Model(profile).
		Update("class_section_id", profile.ClassSectionID).Error; err != nil {
		return nil, appErrors.FromError(classify("update_profile", err))
	}
	classify("update_profile", nil)

	if previousClass != nil {
		g.invalidateClass(*previousClass)
	}
	if profile.ClassSectionID != nil {
		g.invalidateClass(*profile.ClassSectionID)
	}
	return profile, nil
}

// SubmitAnswer upserts one answer attempt for the caller. Re-submitting the
// same attempt overwrites the earlier row rather than adding a second one.
func (g *Gateway) SubmitAnswer(ctx context.Context, identity auth.Identity, input SubmitAnswerInput) (*models.Answer, error) {
	if identity.IsAnonymous() {
		return nil, appErrors.ErrUnauthorized
	}
	if input.QuestionID == "" || input.Value == "" {
		return nil, appErrors.NewValidation("question_id and value are required")
	}
	if input.AttemptNumber <= 0 {
		input.AttemptNumber = 1
	}

	profile, err := g.loadProfile(ctx, identity.Username)
	if err != nil {
		return nil, err
	}

	answer := &models.Answer{
		Username:       identity.Username,
		QuestionID:     input.QuestionID,
		AttemptNumber:  input.AttemptNumber,
		Value:          input.Value,
		Reasoning:      input.Reasoning,
		ClassSectionID: profile.ClassSectionID,
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	err = g.db.WithContext(opCtx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "username"}, {Name: "question_id"}, {Name: "attempt_number"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"value", "reasoning", "updated_at"}),
	}).Create(answer).Error
	if err != nil {
		return nil, appErrors.FromError(classify("submit_answer", err))
	}

	// On the conflict path Create leaves the hook-generated ID in the struct,
	// not the existing row's, so reload the persisted attempt. A fresh struct
	// keeps the stale ID out of the query conditions.
	persisted := &models.Answer{}
	err = g.db.WithContext(opCtx).
		Where("username = ? AND question_id = ? AND attempt_number = ?",
			identity.Username, input.QuestionID, input.AttemptNumber).
		First(persisted).Error
	if err != nil {
		return nil, appErrors.FromError(classify("submit_answer", err))
	}
	classify("submit_answer", nil)
	answer = persisted

	g.invalidateAnswer(input.QuestionID, profile.ClassSectionID)

	g.broadcast(realtime.QuestionStream(input.QuestionID), realtime.EventAnswerSubmitted, map[string]any{
		"question_id": input.QuestionID,
		"username":    identity.Username,
	})
	if profile.ClassSectionID != nil {
		g.broadcast(realtime.ClassStream(*profile.ClassSectionID), realtime.EventAnswerSubmitted, map[string]any{
			"question_id": input.QuestionID,
			"username":    identity.Username,
		})
	}
	return answer, nil
}

// SubmitAnswerBatch processes each item independently; one bad item never
// aborts the rest.
func (g *Gateway) SubmitAnswerBatch(ctx context.Context, identity auth.Identity, inputs []SubmitAnswerInput) []BatchResult {
	results := make([]BatchResult, 0, len(inputs))
	for i, input := range inputs {
		answer, err := g.SubmitAnswer(ctx, identity, input)
		result := BatchResult{Index: i, Answer: answer}
		if err != nil {
			result.Answer = nil
			result.Error = appErrors.FromError(err)
		}
		results = append(results, result)
	}
	return results
}

// CastVote records a peer endorsement. Voting on your own answer is rejected
// before any row-store write, for teachers and students alike. A repeat vote
// by the same voter updates the existing row.
func (g *Gateway) CastVote(ctx context.Context, identity auth.Identity, answerID, voteType string) (*models.Vote, error) {
	if identity.IsAnonymous() {
		return nil, appErrors.ErrUnauthorized
	}
	if voteType == "" {
		voteType = "helpful"
	}

	answer, err := g.loadAnswer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if answer.Username == identity.Username {
		return nil, appErrors.ErrInvalidOperation.WithMessage("You cannot vote on your own answer")
	}

	vote := &models.Vote{
		AnswerID:      answerID,
		VoterUsername: identity.Username,
		VoteType:      voteType,
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	err = g.db.WithContext(opCtx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voter_username"}, {Name: "answer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_type", "updated_at"}),
	}).Create(vote).Error
	if err != nil {
		return nil, appErrors.FromError(classify("cast_vote", err))
	}
	classify("cast_vote", nil)

	g.invalidateAnswer(answer.QuestionID, answer.ClassSectionID)

	g.broadcast(realtime.QuestionStream(answer.QuestionID), realtime.EventVoteCast, map[string]any{
		"question_id": answer.QuestionID,
		"answer_id":   answerID,
		"voter":       identity.Username,
	})
	return vote, nil
}

// AwardBadge attaches a badge to a profile. Teachers may award badges to
// anyone; students only record badges they earned themselves.
func (g *Gateway) AwardBadge(ctx context.Context, identity auth.Identity, input AwardBadgeInput) (*models.Badge, error) {
	if identity.IsAnonymous() {
		return nil, appErrors.ErrUnauthorized
	}
	if !identity.IsTeacher() && !identity.Owns(input.Username) {
		return nil, appErrors.ErrForbidden.WithMessage("Only teachers may award badges to other profiles")
	}

	target, err := g.loadProfile(ctx, input.Username)
	if err != nil {
		return nil, err
	}

	badge := &models.Badge{
		Username:       input.Username,
		BadgeType:      input.BadgeType,
		QuestionID:     input.QuestionID,
		AwardedBy:      identity.Username,
		ClassSectionID: target.ClassSectionID,
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.db.WithContext(opCtx).Create(badge).Error; err != nil {
		return nil, appErrors.FromError(classify("award_badge", err))
	}
	classify("award_badge", nil)

	if target.ClassSectionID != nil {
		g.cache.Invalidate(classLeaderboardKey(*target.ClassSectionID))
		g.broadcast(realtime.ClassStream(*target.ClassSectionID), realtime.EventBadgeAwarded, map[string]any{
			"username":   input.Username,
			"badge_type": input.BadgeType,
		})
	}
	return badge, nil
}

// UpdateProgress upserts lesson completion. Progress is owner-only: not even
// teachers write someone else's completion counters.
func (g *Gateway) UpdateProgress(ctx context.Context, identity auth.Identity, username string, input UpdateProgressInput) (*models.Progress, error) {
	if identity.IsAnonymous() {
		return nil, appErrors.ErrUnauthorized
	}
	if !identity.Owns(username) {
		return nil, appErrors.ErrForbidden.WithMessage("Progress may only be updated by its owner")
	}

	profile, err := g.loadProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	progress := &models.Progress{
		Username:           username,
		LessonID:           input.LessonID,
		CompletedQuestions: input.CompletedQuestions,
		TotalQuestions:     input.TotalQuestions,
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	err = g.db.WithContext(opCtx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed_questions", "total_questions", "updated_at"}),
	}).Create(progress).Error
	if err != nil {
		return nil, appErrors.FromError(classify("update_progress", err))
	}
	classify("update_progress", nil)

	g.invalidateProfile(username, profile.ClassSectionID)

	if profile.ClassSectionID != nil {
		g.broadcast(realtime.ClassStream(*profile.ClassSectionID), realtime.EventProgressUpdated, map[string]any{
			"username":  username,
			"lesson_id": input.LessonID,
		})
	}
	return progress, nil
}

// Heartbeat upserts the caller's last-seen timestamp. Presence is not part of
// any cached aggregate except the roster, which tolerates TTL staleness, so
// heartbeats invalidate nothing.
func (g *Gateway) Heartbeat(ctx context.Context, identity auth.Identity) error {
	if identity.IsAnonymous() {
		return appErrors.ErrUnauthorized
	}

	activity := &models.UserActivity{
		Username: identity.Username,
		LastSeen: time.Now().UTC(),
	}

	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	err := g.db.WithContext(opCtx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "updated_at"}),
	}).Create(activity).Error
	if err != nil {
		return appErrors.FromError(classify("heartbeat", err))
	}
	classify("heartbeat", nil)
	return nil
}

func (g *Gateway) loadProfile(ctx context.Context, username string) (*models.Profile, error) {
	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	var profile models.Profile
	if err := g.db.WithContext(opCtx).First(&profile, "username = ?", username).Error; err != nil {
		classified := classify("load_profile", err)
		if appErrors.IsKind(classified, appErrors.KindNotFound) {
			return nil, appErrors.ErrNotFound.WithMessage("Profile not found").WithInternal(err)
		}
		return nil, appErrors.FromError(classified)
	}
	classify("load_profile", nil)
	return &profile, nil
}

func (g *Gateway) loadAnswer(ctx context.Context, answerID string) (*models.Answer, error) {
	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	var answer models.Answer
	if err := g.db.WithContext(opCtx).First(&answer, "id = ?", answerID).Error; err != nil {
		classified := classify("load_answer", err)
		if appErrors.IsKind(classified, appErrors.KindNotFound) {
			return nil, appErrors.ErrNotFound.WithMessage("Answer not found").WithInternal(err)
		}
		return nil, appErrors.FromError(classified)
	}
	classify("load_answer", nil)
	return &answer, nil
}

func (g *Gateway) findSectionByJoinCode(ctx context.Context, joinCode string) (*models.ClassSection, error) {
	opCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	var section models.ClassSection
	if err := g.db.WithContext(opCtx).First(&section, "join_code = ?", joinCode).Error; err != nil {
		return nil, appErrors.FromError(classify("class_section", err))
	}
	classify("class_section", nil)
	return &section, nil
}
