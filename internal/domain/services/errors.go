package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind groups workflow errors by how a caller should react to them.
type ErrorKind string

const (
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindMissingPermission ErrorKind = "missing_permission"
	KindStatusIncorrect   ErrorKind = "status_incorrect"
	KindAlreadyExists     ErrorKind = "already_exists"
	KindNotFound          ErrorKind = "not_found"
	KindDataIntegrity     ErrorKind = "data_integrity"
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
)

// WorkflowError is the structured error every engine operation returns.
// Sentinels below are matched with errors.Is on Code, so a copy enriched with
// entity and action context still matches its sentinel.
type WorkflowError struct {
	Kind     ErrorKind
	Code     string
	Message  string
	EntityID uuid.UUID
	Action   string
	Err      error
}

func (e *WorkflowError) Error() string {
	msg := e.Message
	if e.Action != "" {
		msg = fmt.Sprintf("%s: %s", e.Action, msg)
	}
	if e.EntityID != uuid.Nil {
		msg = fmt.Sprintf("%s (%s)", msg, e.EntityID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *WorkflowError) Unwrap() error { return e.Err }

func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	return ok && t.Code == e.Code
}

func newError(kind ErrorKind, code, message string) *WorkflowError {
	return &WorkflowError{Kind: kind, Code: code, Message: message}
}

// fail returns a copy of sentinel carrying the entity, action and cause.
func fail(sentinel *WorkflowError, entityID uuid.UUID, action string, cause error) *WorkflowError {
	e := *sentinel
	e.EntityID = entityID
	e.Action = action
	e.Err = cause
	return &e
}

// KindOf reports the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

var (
	ErrIllegalTransition = newError(KindIllegalTransition, "illegal_transition", "status transition not allowed")

	ErrMissingPermission = newError(KindMissingPermission, "missing_permission", "missing document permission")
	ErrNotSignatureOwner = newError(KindMissingPermission, "not_signature_owner", "signature belongs to another user")
	ErrNotEligibleVoter  = newError(KindMissingPermission, "not_eligible_voter", "user is not an eligible voter")

	ErrStatusIncorrectForCreateSignature     = newError(KindStatusIncorrect, "status_incorrect_for_create_signature", "version status does not allow new signatures")
	ErrStatusIncorrectForSign                = newError(KindStatusIncorrect, "status_incorrect_for_sign", "signature is not awaiting a decision")
	ErrStatusIncorrectForCreateVotingProcess = newError(KindStatusIncorrect, "status_incorrect_for_create_voting_process", "version status does not allow new voting processes")
	ErrStatusIncorrectForVote                = newError(KindStatusIncorrect, "status_incorrect_for_vote", "voting process is not in progress")
	ErrStatusIncorrectForEdit                = newError(KindStatusIncorrect, "status_incorrect_for_edit", "only draft versions can be edited")
	ErrVotingDeadlinePassed                  = newError(KindStatusIncorrect, "voting_deadline_passed", "voting deadline has passed")
	ErrVotingProcessHasVotes                 = newError(KindStatusIncorrect, "voting_process_has_votes", "voting process already has votes")
	ErrDocumentInWorkflow                    = newError(KindStatusIncorrect, "document_in_workflow", "document has versions in signing or voting")

	ErrSignatureAlreadyExists           = newError(KindAlreadyExists, "signature_already_exists", "signer already has a pending signature on this version")
	ErrVoteAlreadyExists                = newError(KindAlreadyExists, "vote_already_exists", "user already voted in this process")
	ErrDocumentPermissionAlreadyGranted = newError(KindAlreadyExists, "document_permission_already_granted", "permission already granted")

	ErrUserNotFound          = newError(KindNotFound, "user_not_found", "user not found")
	ErrDocumentNotFound      = newError(KindNotFound, "document_not_found", "document not found")
	ErrVersionNotFound       = newError(KindNotFound, "version_not_found", "document version not found")
	ErrSignatureNotFound     = newError(KindNotFound, "signature_not_found", "signature not found")
	ErrVotingProcessNotFound = newError(KindNotFound, "voting_process_not_found", "voting process not found")
	ErrSubstitutionNotFound  = newError(KindNotFound, "substitution_not_found", "substitution not found")
	ErrGrantNotFound         = newError(KindNotFound, "grant_not_found", "permission grant not found")
	ErrNotificationNotFound  = newError(KindNotFound, "notification_not_found", "notification not found")

	ErrNoDocumentType    = newError(KindDataIntegrity, "no_document_type", "document type not found")
	ErrIllFormedTemplate = newError(KindDataIntegrity, "ill_formed_template", "document type attribute schema is malformed")

	ErrIllFormedAttributes = newError(KindValidation, "ill_formed_attributes", "attributes do not match the document type schema")
	ErrInvalidInput        = newError(KindValidation, "invalid_input", "invalid input")
	ErrSelfSubstitution    = newError(KindValidation, "self_substitution", "a user cannot substitute for themselves")

	ErrConcurrentModification = newError(KindConflict, "concurrent_modification", "version was modified concurrently, retry later")
)

var errUntilInPast = errors.New("substitution must end in the future")
