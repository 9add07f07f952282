package investigation

// CommentStatus is the result of a comment-created trigger.
type CommentStatus string

const (
	CommentQueued        CommentStatus = "queued"
	CommentAlreadyQueued CommentStatus = "already_queued"
	CommentIgnored       CommentStatus = "ignored"
)

// Reasons attached to ignored outcomes.
const (
	ReasonBotComment                = "bot_comment"
	ReasonNotPreviouslyInvestigated = "not_previously_investigated"
	ReasonUnsupportedEvent          = "unsupported_event"
)
