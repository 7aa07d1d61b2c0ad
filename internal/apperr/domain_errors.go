package apperr

var (
	ErrAuthenticationFailed = Unauthorized("authentication failed")
	ErrUnauthenticated      = Unauthorized("Please log in.")
	ErrChallengeInvalid     = Unauthorized("invalid or expired login challenge")
	ErrInvalidSignature     = Unauthorized("signature verification failed")

	// ErrDenied é a única falha de participação que o chamador vê
	ErrDenied = Forbidden("You're not a participant of this channel!")

	ErrChannelNotFound = NotFound("channel not found")
	ErrNotAMember      = Forbidden("identity is not a participant of this channel")
	ErrUserNotFound    = NotFound("user with this identity cannot be found")
	ErrNotVerified     = Forbidden("Please verify your identity.")

	ErrInvalidPublicKey     = InvalidArg("invalid public key")
	ErrInvalidIdentity      = InvalidArg("please enter a valid identity")
	ErrEmptyMessage         = InvalidArg("message cannot be empty")
	ErrReadReceiptsDisabled = FailedPrecondition("read receipts are disabled for imported channels")
	ErrProofsDisabled       = FailedPrecondition("identity proofs are not configured")
	ErrProofRejected        = InvalidArg("identity proof was rejected")
	ErrSelfChannel          = InvalidArg("you cannot open a channel with yourself")
	ErrGroupTooLarge        = InvalidArg("too many participants for a group channel")

	ErrCryptoFailure  = New(CodeInvalidArgument, "decryption failed")
	ErrUnavailable    = New(CodeUnavailable, "service temporarily unavailable, retry later")
	ErrCorruptChannel = Internal("channel invariants violated")
	ErrEntropy        = Internal("secure random source unavailable")
)

// Unavailable embrulha uma falha transitória de armazenamento ou consulta
func Unavailable(cause error) error {
	return Wrap(CodeUnavailable, "service temporarily unavailable, retry later", cause)
}
