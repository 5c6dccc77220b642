package domain

import "errors"

// Sentinel errors returned by the compliance engine. Stores return the
// persistence facts (ErrNotFound, ErrConflict) and services add the
// validation and gating errors; callers match with errors.Is.
var (
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("conflict")
	ErrInvalidSection            = errors.New("invalid checklist section")
	ErrInvalidCategory           = errors.New("invalid suspicion category")
	ErrInvalidDecision           = errors.New("invalid decision code")
	ErrMissingFields             = errors.New("missing required fields")
	ErrApprovalRequired          = errors.New("management approval required")
	ErrApprovalNotRequired       = errors.New("management approval not required")
	ErrNoRateAvailable           = errors.New("no exchange rate available")
	ErrCaseClosed                = errors.New("investigation is closed")
	ErrInvalidState              = errors.New("invalid state transition")
	ErrActiveInvestigationExists = errors.New("customer already has an active investigation")
	ErrNotAuthorized             = errors.New("not authorized")
)
