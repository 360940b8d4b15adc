package gateway

import (
	"fmt"

	"github.com/robjohncolson/statrelay/pkg/metrics"
)

// Cache-key families. Keys are derived here and nowhere else so that write
// invalidation and read lookups can never drift apart.
func answersKey(questionID string) string {
	return fmt.Sprintf("answers:q:%s", questionID)
}

func consensusKey(questionID string) string {
	return fmt.Sprintf("consensus:q:%s", questionID)
}

func classPeersKey(classID string) string {
	return fmt.Sprintf("class:%s:peers", classID)
}

func classRosterKey(classID string) string {
	return fmt.Sprintf("class:%s:roster", classID)
}

func classLeaderboardKey(classID string) string {
	return fmt.Sprintf("class:%s:leaderboard", classID)
}

func progressKey(username string) string {
	return fmt.Sprintf("progress:u:%s", username)
}

func classPrefix(classID string) string {
	return fmt.Sprintf("class:%s:", classID)
}

// invalidateAnswer drops every cached aggregate an answer or vote write could
// have gone stale: the question's answer set and consensus, plus the class
// peer-data and leaderboard views when the writer belongs to a class.
func (g *Gateway) invalidateAnswer(questionID string, classID *string) {
	g.cache.Invalidate(answersKey(questionID), consensusKey(questionID))
	metrics.CacheInvalidations.WithLabelValues("answers").Inc()
	metrics.CacheInvalidations.WithLabelValues("consensus").Inc()

	if classID != nil && *classID != "" {
		g.cache.Invalidate(classPeersKey(*classID), classLeaderboardKey(*classID))
		metrics.CacheInvalidations.WithLabelValues("class").Inc()
	}
}

// invalidateProfile drops aggregates keyed by a profile: its progress view and
// any class views the profile appears in.
func (g *Gateway) invalidateProfile(username string, classID *string) {
	g.cache.Invalidate(progressKey(username))
	metrics.CacheInvalidations.WithLabelValues("progress").Inc()

	if classID != nil && *classID != "" {
		g.cache.InvalidatePrefix(classPrefix(*classID))
		metrics.CacheInvalidations.WithLabelValues("class").Inc()
	}
}

// invalidateClass drops every cached view of one class section.
func (g *Gateway) invalidateClass(classID string) {
	if classID == "" {
		return
	}
	g.cache.InvalidatePrefix(classPrefix(classID))
	metrics.CacheInvalidations.WithLabelValues("class").Inc()
}
