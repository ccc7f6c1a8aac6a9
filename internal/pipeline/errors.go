package pipeline

import "brickkit/internal/services"

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func (notFoundError) Unwrap() error { return services.ErrNotFound }

// ErrNoVariants reports a selected model without download links.
var ErrNoVariants error = notFoundError("no download variants found for the selected model")

// ErrRunLocked reports a run directory already owned by another process.
var ErrRunLocked = services.Wrap(services.ErrValidation, "pipeline", "lock run dir", "run directory is locked by another process", nil)
