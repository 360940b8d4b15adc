package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/cache"
	"github.com/robjohncolson/statrelay/internal/database/testutil"
	"github.com/robjohncolson/statrelay/internal/models"
	"github.com/robjohncolson/statrelay/internal/realtime"
	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
)

type recordingBroadcaster struct {
	events []string
}

func (r *recordingBroadcaster) Broadcast(stream string, message realtime.Message) {
	r.events = append(r.events, stream+"/"+message.Event)
}

func newTestGateway(t *testing.T) (*Gateway, *gorm.DB, *recordingBroadcaster) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	responseCache := cache.NewResponseCache()
	t.Cleanup(responseCache.Close)

	hub := &recordingBroadcaster{}
	g, err := New(db, responseCache, hub, Config{})
	require.NoError(t, err)
	return g, db, hub
}

func seedProfile(t *testing.T, db *gorm.DB, username string, isTeacher bool, classID *string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Profile{
		Username:       username,
		IsTeacher:      isTeacher,
		ClassSectionID: classID,
	}).Error)
}

func seedClass(t *testing.T, db *gorm.DB, teacher, joinCode string) string {
	t.Helper()
	section := &models.ClassSection{Name: "Period 3", TeacherUsername: teacher, JoinCode: joinCode}
	require.NoError(t, db.Create(section).Error)
	return section.ID
}

func student(username string) auth.Identity {
	return auth.Identity{Username: username, Role: auth.RoleStudent}
}

func teacher(username string) auth.Identity {
	return auth.Identity{Username: username, Role: auth.RoleTeacher}
}

func TestCreateProfileDuplicateUsernameConflicts(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := g.CreateProfile(ctx, CreateProfileInput{Username: "stats_kid"})
	require.NoError(t, err)

	_, err = g.CreateProfile(ctx, CreateProfileInput{Username: "stats_kid"})
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindConflict))
}

func TestCreateProfileRejectsBadUsername(t *testing.T) {
	g, _, _ := newTestGateway(t)

	_, err := g.CreateProfile(context.Background(), CreateProfileInput{Username: "x"})
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindValidation))
}

func TestCreateProfileWithJoinCode(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	classID := seedClass(t, db, "ms_rivera", "JOIN1234")

	profile, err := g.CreateProfile(ctx, CreateProfileInput{Username: "new_kid", JoinCode: "JOIN1234"})
	require.NoError(t, err)
	require.NotNil(t, profile.ClassSectionID)
	require.Equal(t, classID, *profile.ClassSectionID)

	_, err = g.CreateProfile(ctx, CreateProfileInput{Username: "lost_kid", JoinCode: "WRONG"})
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindValidation))
}

func TestSubmitAnswerOverwritesSameAttempt(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "stats_kid", false, nil)

	first, err := g.SubmitAnswer(ctx, student("stats_kid"), SubmitAnswerInput{
		QuestionID: "q-bias-1", Value: "A", Reasoning: "first pass",
	})
	require.NoError(t, err)

	second, err := g.SubmitAnswer(ctx, student("stats_kid"), SubmitAnswerInput{
		QuestionID: "q-bias-1", Value: "C", Reasoning: "changed my mind",
	})
	require.NoError(t, err)

	var answers []models.Answer
	require.NoError(t, db.Where("question_id = ?", "q-bias-1").Find(&answers).Error)
	require.Len(t, answers, 1)
	require.Equal(t, "C", answers[0].Value)
	require.Equal(t, "changed my mind", answers[0].Reasoning)

	// The overwrite must report the persisted row, not a fresh hook-generated ID.
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, answers[0].ID, second.ID)
}

func TestSubmitAnswerInvalidationKeepsReadsFresh(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "stats_kid", false, nil)

	_, err := g.SubmitAnswer(ctx, student("stats_kid"), SubmitAnswerInput{
		QuestionID: "q-spread-2", Value: "A",
	})
	require.NoError(t, err)

	answers, err := g.PeerAnswers(ctx, student("other_kid"), "q-spread-2")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Equal(t, "A", answers[0].Value)

	// The write must evict the cached aggregate; the next read sees the new
	// value immediately, not after TTL expiry.
	_, err = g.SubmitAnswer(ctx, student("stats_kid"), SubmitAnswerInput{
		QuestionID: "q-spread-2", Value: "B",
	})
	require.NoError(t, err)

	answers, err = g.PeerAnswers(ctx, student("other_kid"), "q-spread-2")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Equal(t, "B", answers[0].Value)
}

func TestConsensusServedFromCacheWithinTTL(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "stats_kid", false, nil)

	_, err := g.SubmitAnswer(ctx, student("stats_kid"), SubmitAnswerInput{
		QuestionID: "q-center-3", Value: "B",
	})
	require.NoError(t, err)

	first, err := g.Consensus(ctx, "q-center-3")
	require.NoError(t, err)
	require.Equal(t, 1, first.Total)
	require.Equal(t, 1, first.Distribution["B"])

	_, missesBefore, _ := g.cache.Stats()
	for i := 0; i < 5; i++ {
		report, err := g.Consensus(ctx, "q-center-3")
		require.NoError(t, err)
		require.Equal(t, first, report)
	}
	_, missesAfter, _ := g.cache.Stats()
	require.Equal(t, missesBefore, missesAfter, "repeat reads within TTL must not hit the row-store")
}

func TestPeerAnswersProjectsTeacherNote(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Answer{
		Username:    "stats_kid",
		QuestionID:  "q-samp-4",
		Value:       "D",
		TeacherNote: "misread the stem",
	}).Error)

	asStudent, err := g.PeerAnswers(ctx, student("other_kid"), "q-samp-4")
	require.NoError(t, err)
	require.Len(t, asStudent, 1)
	require.Empty(t, asStudent[0].TeacherNote)

	asTeacher, err := g.PeerAnswers(ctx, teacher("ms_rivera"), "q-samp-4")
	require.NoError(t, err)
	require.Len(t, asTeacher, 1)
	require.Equal(t, "misread the stem", asTeacher[0].TeacherNote)

	// The cached aggregate keeps the note for later teacher reads.
	asStudent, err = g.PeerAnswers(ctx, auth.Anonymous, "q-samp-4")
	require.NoError(t, err)
	require.Empty(t, asStudent[0].TeacherNote)
}

func TestCastVoteRejectsSelfVoteRegardlessOfRole(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "ms_rivera", true, nil)

	answer := &models.Answer{Username: "ms_rivera", QuestionID: "q-inf-5", Value: "A"}
	require.NoError(t, db.Create(answer).Error)

	_, err := g.CastVote(ctx, teacher("ms_rivera"), answer.ID, "helpful")
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindInvalidOperation))

	var count int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&count).Error)
	require.Zero(t, count, "a rejected self-vote must not reach the row-store")
}

func TestCastVoteRepeatUpdatesExistingRow(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	answer := &models.Answer{Username: "stats_kid", QuestionID: "q-inf-6", Value: "B"}
	require.NoError(t, db.Create(answer).Error)

	_, err := g.CastVote(ctx, student("other_kid"), answer.ID, "helpful")
	require.NoError(t, err)
	_, err = g.CastVote(ctx, student("other_kid"), answer.ID, "insightful")
	require.NoError(t, err)

	var votes []models.Vote
	require.NoError(t, db.Where("answer_id = ?", answer.ID).Find(&votes).Error)
	require.Len(t, votes, 1)
	require.Equal(t, "insightful", votes[0].VoteType)
}

func TestCastVoteUnknownAnswerNotFound(t *testing.T) {
	g, _, _ := newTestGateway(t)

	_, err := g.CastVote(context.Background(), student("other_kid"), "00000000-0000-0000-0000-000000000000", "helpful")
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindNotFound))
}

func TestSubmitAnswerBatchIsolatesFailures(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "stats_kid", false, nil)

	results := g.SubmitAnswerBatch(ctx, student("stats_kid"), []SubmitAnswerInput{
		{QuestionID: "q-batch-1", Value: "A"},
		{QuestionID: "", Value: "B"},
		{QuestionID: "q-batch-3", Value: "C"},
	})
	require.Len(t, results, 3)

	require.Nil(t, results[0].Error)
	require.NotNil(t, results[0].Answer)

	require.NotNil(t, results[1].Error)
	require.Equal(t, appErrors.KindValidation, results[1].Error.Kind)
	require.Nil(t, results[1].Answer)

	require.Nil(t, results[2].Error)
	require.NotNil(t, results[2].Answer)
}

func TestUpdateProfileRequiresOwnerOrTeacher(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	classID := seedClass(t, db, "ms_rivera", "JOIN9999")
	seedProfile(t, db, "stats_kid", false, nil)

	_, err := g.UpdateProfile(ctx, student("other_kid"), "stats_kid", UpdateProfileInput{ClassSectionID: &classID})
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindAuthorization))

	updated, err := g.UpdateProfile(ctx, teacher("ms_rivera"), "stats_kid", UpdateProfileInput{ClassSectionID: &classID})
	require.NoError(t, err)
	require.NotNil(t, updated.ClassSectionID)
	require.Equal(t, classID, *updated.ClassSectionID)
}

func TestClassRosterForeignTeacherForbidden(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	classID := seedClass(t, db, "ms_rivera", "JOIN0001")
	seedProfile(t, db, "stats_kid", false, &classID)

	_, err := g.ClassRoster(ctx, teacher("mr_chen"), classID)
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindAuthorization))

	_, err = g.ClassRoster(ctx, student("stats_kid"), classID)
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindAuthorization))

	roster, err := g.ClassRoster(ctx, teacher("ms_rivera"), classID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "stats_kid", roster[0].Username)
}

func TestProfileProgressVisibility(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "stats_kid", false, nil)

	_, err := g.UpdateProgress(ctx, student("stats_kid"), "stats_kid", UpdateProgressInput{
		LessonID: "unit-1", CompletedQuestions: 4, TotalQuestions: 10,
	})
	require.NoError(t, err)

	_, err = g.ProfileProgress(ctx, student("other_kid"), "stats_kid")
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindAuthorization))

	rows, err := g.ProfileProgress(ctx, teacher("ms_rivera"), "stats_kid")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 4, rows[0].CompletedQuestions)
}

func TestUpdateProgressOwnerOnlyAndUpserts(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()
	seedProfile(t, db, "stats_kid", false, nil)

	_, err := g.UpdateProgress(ctx, teacher("ms_rivera"), "stats_kid", UpdateProgressInput{LessonID: "unit-1"})
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindAuthorization))

	_, err = g.UpdateProgress(ctx, student("stats_kid"), "stats_kid", UpdateProgressInput{
		LessonID: "unit-1", CompletedQuestions: 2, TotalQuestions: 10,
	})
	require.NoError(t, err)
	_, err = g.UpdateProgress(ctx, student("stats_kid"), "stats_kid", UpdateProgressInput{
		LessonID: "unit-1", CompletedQuestions: 7, TotalQuestions: 10,
	})
	require.NoError(t, err)

	var rows []models.Progress
	require.NoError(t, db.Where("username = ?", "stats_kid").Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, 7, rows[0].CompletedQuestions)
}

func TestAwardBadgeTeacherEligible(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	classID := seedClass(t, db, "ms_rivera", "JOIN0002")
	seedProfile(t, db, "stats_kid", false, &classID)
	seedProfile(t, db, "other_kid", false, &classID)

	_, err := g.AwardBadge(ctx, student("other_kid"), AwardBadgeInput{Username: "stats_kid", BadgeType: "streak_5"})
	require.Error(t, err)
	require.True(t, appErrors.IsKind(err, appErrors.KindAuthorization))

	_, err = g.AwardBadge(ctx, student("stats_kid"), AwardBadgeInput{Username: "stats_kid", BadgeType: "streak_5"})
	require.NoError(t, err)

	_, err = g.AwardBadge(ctx, teacher("ms_rivera"), AwardBadgeInput{Username: "other_kid", BadgeType: "great_reasoning"})
	require.NoError(t, err)

	board, err := g.Leaderboard(ctx, classID)
	require.NoError(t, err)
	require.Len(t, board, 2)
}

func TestHeartbeatUpsertsLastSeen(t *testing.T) {
	g, db, _ := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Heartbeat(ctx, student("stats_kid")))
	require.NoError(t, g.Heartbeat(ctx, student("stats_kid")))

	var rows []models.UserActivity
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.False(t, rows[0].LastSeen.IsZero())

	require.Error(t, g.Heartbeat(ctx, auth.Anonymous))
}

func TestWriteEventsReachBroadcaster(t *testing.T) {
	g, db, hub := newTestGateway(t)
	ctx := context.Background()

	classID := seedClass(t, db, "ms_rivera", "JOIN0003")
	seedProfile(t, db, "stats_kid", false, &classID)

	_, err := g.SubmitAnswer(ctx, student("stats_kid"), SubmitAnswerInput{QuestionID: "q-rt-1", Value: "A"})
	require.NoError(t, err)

	require.Contains(t, hub.events, realtime.QuestionStream("q-rt-1")+"/"+realtime.EventAnswerSubmitted)
	require.Contains(t, hub.events, realtime.ClassStream(classID)+"/"+realtime.EventAnswerSubmitted)
}
