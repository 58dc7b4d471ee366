package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidDate    ErrCode = "INVALID_DATE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrNoActiveSession  ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionNotActive ErrCode = "SESSION_NOT_ACTIVE"
	ErrTimeUp           ErrCode = "TIME_UP"
	ErrOutOfRange       ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrNotMCQ           ErrCode = "NOT_MULTIPLE_CHOICE"

	// ─── Daily challenge ───────────────────────────────────────────────
	ErrDailyLocked       ErrCode = "DAILY_LOCKED"
	ErrDailyAttempted    ErrCode = "DAILY_ALREADY_ATTEMPTED"
	ErrDailyNotPublished ErrCode = "DAILY_NOT_PUBLISHED"
	ErrDailyNotAttempted ErrCode = "DAILY_NOT_ATTEMPTED"

	// ─── Storage ──────────────────────────────────────────────────────
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"

	// ─── Model ─────────────────────────────────────────────────────────
	ErrModelUnavailable ErrCode = "MODEL_UNAVAILABLE"
	ErrUnsupportedFile  ErrCode = "UNSUPPORTED_FILE"
	ErrNothingExtracted ErrCode = "NOTHING_EXTRACTED"

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
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidDate:
		return "Date must be formatted as YYYY-MM-DD."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrNoActiveSession:
		return "There is no exam in progress."
	case ErrSessionNotActive:
		return "This exam has already been submitted."
	case ErrTimeUp:
		return "Time is up for this exam."
	case ErrOutOfRange:
		return "Question index is out of range."
	case ErrNotMCQ:
		return "The current question is not multiple choice."

	// ─── Daily challenge ───────────────────────────────────────────────
	case ErrDailyLocked:
		return "Today's challenge has not opened yet."
	case ErrDailyAttempted:
		return "You have already attempted today's challenge."
	case ErrDailyNotPublished:
		return "Today's challenge has not been published yet."
	case ErrDailyNotAttempted:
		return "You have not attempted today's challenge."

	// ─── Storage ──────────────────────────────────────────────────────
	case ErrStorageUnavailable:
		return "This feature requires a database, which is not configured."

	// ─── Model ─────────────────────────────────────────────────────────
	case ErrModelUnavailable:
		return "The question model is not configured or is unavailable right now."
	case ErrUnsupportedFile:
		return "Upload a PDF, PNG, JPEG or WebP file."
	case ErrNothingExtracted:
		return "No questions could be extracted. Check the document's clarity."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
