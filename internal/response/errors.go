package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrUserInactive  ErrCode = "USER_INACTIVE"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrNotMember     ErrCode = "NOT_A_MEMBER"
	ErrCreatorOnly   ErrCode = "CREATOR_ONLY"
	ErrCreatorLocked ErrCode = "CREATOR_CANNOT_LEAVE"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Challenge lifecycle ───────────────────────────────────────────
	ErrChallengeStarted   ErrCode = "CHALLENGE_ALREADY_STARTED"
	ErrChallengeNotActive ErrCode = "CHALLENGE_NOT_ACTIVE"
	ErrExamNotStarted     ErrCode = "EXAM_NOT_STARTED"
	ErrAlreadySubmitted   ErrCode = "ALREADY_SUBMITTED"
	ErrAlreadyGraded      ErrCode = "ALREADY_GRADED"
	ErrNoSubmission       ErrCode = "NO_SUBMISSION"
	ErrResultsNotReady    ErrCode = "RESULTS_NOT_READY"
	ErrNoAnswerSheets     ErrCode = "NO_ANSWER_SHEETS"

	// ─── Membership & invitations ──────────────────────────────────────
	ErrNoInvitation   ErrCode = "NO_PENDING_INVITATION"
	ErrInviteExpired  ErrCode = "INVITATION_EXPIRED"
	ErrAlreadyInvited ErrCode = "ALREADY_INVITED"
	ErrAlreadyMember  ErrCode = "ALREADY_A_MEMBER"
	ErrGroupFull      ErrCode = "GROUP_FULL"

	// ─── Chat ──────────────────────────────────────────────────────────
	ErrMessageTooLong ErrCode = "MESSAGE_TOO_LONG"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrUserInactive:
		return "User account not found or inactive."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotMember:
		return "You are not an active member of this group."
	case ErrCreatorOnly:
		return "Only the group creator can perform this action."
	case ErrCreatorLocked:
		return "Group creator cannot leave or be removed. Transfer ownership or delete the group."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Challenge lifecycle ───────────────────────────────────────────
	case ErrChallengeStarted:
		return "Challenge has already started."
	case ErrChallengeNotActive:
		return "Challenge is not active."
	case ErrExamNotStarted:
		return "Exam has not started yet."
	case ErrAlreadySubmitted:
		return "You have already submitted this exam."
	case ErrAlreadyGraded:
		return "This submission has already been graded."
	case ErrNoSubmission:
		return "No submission found."
	case ErrResultsNotReady:
		return "Results are not available yet."
	case ErrNoAnswerSheets:
		return "At least one answer sheet is required."

	// ─── Membership & invitations ──────────────────────────────────────
	case ErrNoInvitation:
		return "No pending invitation found."
	case ErrInviteExpired:
		return "Invitation has expired."
	case ErrAlreadyInvited:
		return "Invitation already sent."
	case ErrAlreadyMember:
		return "User is already a member."
	case ErrGroupFull:
		return "Group has reached its maximum member limit."

	// ─── Chat ──────────────────────────────────────────────────────────
	case ErrMessageTooLong:
		return "Message exceeds the maximum allowed length."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
