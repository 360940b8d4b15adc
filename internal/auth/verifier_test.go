package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T, clock func() time.Time) *Verifier {
	t.Helper()

	v, err := NewVerifier(Config{
		Secret:   "test-secret",
		Issuer:   "statrelay",
		Audience: "quiz-app",
		TokenTTL: time.Hour,
		Clock:    clock,
	})
	require.NoError(t, err)
	return v
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(t, nil)

	tenant := uuid.New()
	token, err := v.Issue(IssueInput{Username: "stats_kid", Role: RoleStudent, TenantID: &tenant})
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "stats_kid", identity.Username)
	require.Equal(t, RoleStudent, identity.Role)
	require.NotNil(t, identity.TenantID)
	require.Equal(t, tenant, *identity.TenantID)
}

func TestRoleDerivedFromBooleanClaim(t *testing.T) {
	v := newTestVerifier(t, nil)

	token, err := v.Issue(IssueInput{Username: "ms_rivera", Role: RoleTeacher})
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	require.True(t, identity.IsTeacher())
}

func TestMissingTeacherClaimDefaultsToStudent(t *testing.T) {
	v := newTestVerifier(t, nil)

	// Token signed with the right secret but without the tch claim.
	claims := jwt.MapClaims{
		"username": "quiet_kid",
		"iss":      "statrelay",
		"aud":      "quiz-app",
		"exp":      time.Now().Add(time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	identity, err := v.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, RoleStudent, identity.Role)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := newTestVerifier(t, nil)

	_, err := v.Verify("not.a.jwt")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestVerifyRejectsWrongSignature(t *testing.T) {
	v := newTestVerifier(t, nil)

	other, err := NewVerifier(Config{Secret: "other-secret", Issuer: "statrelay", Audience: "quiz-app"})
	require.NoError(t, err)

	token, err := other.Issue(IssueInput{Username: "spoofer"})
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsExpiredTokenWithValidSignature(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuedAt := func() time.Time { return past }

	issuer := newTestVerifier(t, issuedAt)
	token, err := issuer.Issue(IssueInput{Username: "late_kid"})
	require.NoError(t, err)

	verifier := newTestVerifier(t, nil)
	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	other, err := NewVerifier(Config{Secret: "test-secret", Issuer: "someone-else", Audience: "quiz-app"})
	require.NoError(t, err)

	token, err := other.Issue(IssueInput{Username: "stats_kid"})
	require.NoError(t, err)

	v := newTestVerifier(t, nil)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrClaimMismatch)
}

func TestOptionalVerify(t *testing.T) {
	v := newTestVerifier(t, nil)

	identity, err := v.OptionalVerify("")
	require.NoError(t, err)
	require.True(t, identity.IsAnonymous())
	require.Equal(t, RoleStudent, identity.Role)

	_, err = v.OptionalVerify("garbage")
	require.Error(t, err, "a supplied but malformed token must still fail")
}

func TestOwns(t *testing.T) {
	require.True(t, Identity{Username: "a", Role: RoleStudent}.Owns("a"))
	require.False(t, Identity{Username: "a", Role: RoleStudent}.Owns("b"))
	require.False(t, Anonymous.Owns(""))
}
