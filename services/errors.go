package services

import "errors"

// Workflow and invitation error taxonomy. All of these are recoverable client
// errors: the controllers map them to HTTP status codes and none of them leave
// partial state behind.
var (
	// ErrNotFound means the proposal, notice or token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStep means a step operation was attempted while the proposal
	// sits on a different step. Nothing is mutated and no timeline entry is
	// written.
	ErrInvalidStep = errors.New("invalid step")

	// ErrProposalClosed means the proposal already reached a terminal status
	// (ACCEPTED or REJECTED) and no step operation may mutate it again.
	ErrProposalClosed = errors.New("proposal already finalized")

	// ErrValidation means the input was missing or out of range.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateInvitation means the reviewer was already invited to this
	// proposal. The first invitation is unaffected.
	ErrDuplicateInvitation = errors.New("reviewer already invited")

	// ErrForbidden means the caller's role or ownership does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrExpired means the invitation token lapsed before a submission.
	ErrExpired = errors.New("invitation expired")

	// ErrAlreadyCompleted means the invitation was already submitted; the
	// stored decision is never overwritten.
	ErrAlreadyCompleted = errors.New("review already submitted")
)
