package realtime

// Stream naming for write-event fan-out.
const (
	streamQuestionPrefix = "question:"
	streamClassPrefix    = "class:"
)

// Events broadcast by the data gateway.
const (
	EventAnswerSubmitted = "answer.submitted"
	EventVoteCast        = "vote.cast"
	EventBadgeAwarded    = "badge.awarded"
	EventProgressUpdated = "progress.updated"
)

// QuestionStream names the stream carrying events for a single question.
func QuestionStream(questionID string) string {
	return streamQuestionPrefix + questionID
}

// ClassStream names the stream carrying events for a class section.
func ClassStream(classID string) string {
	return streamClassPrefix + classID
}
