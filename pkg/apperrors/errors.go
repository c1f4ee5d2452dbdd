package apperrors

import "errors"

// Pipeline failure kinds. Stages wrap these with %w so the orchestrator and
// the HTTP layer can match by kind without seeing stage internals.
var (
	ErrRateLimitExceeded        = errors.New("rate limit exceeded")
	ErrSchemaUnavailable        = errors.New("schema snapshot unavailable")
	ErrCacheUnavailable         = errors.New("cache unavailable")
	ErrReasonerInvalidSchema    = errors.New("reasoner returned invalid schema")
	ErrReasonerOutOfBounds      = errors.New("reasoner referenced objects outside the schema slice")
	ErrGenerationEmpty          = errors.New("sql generator returned no plans")
	ErrInvalidSQL               = errors.New("invalid sql")
	ErrNotSelect                = errors.New("only SELECT statements are allowed")
	ErrMissingFrom              = errors.New("SELECT must include FROM clause")
	ErrNonLiteralLimit          = errors.New("LIMIT must be numeric literal")
	ErrDisallowedFunction       = errors.New("function is not allowed")
	ErrGuardrailRejected        = errors.New("guardrails rejected query")
	ErrExecutionTimeout         = errors.New("query execution timed out")
	ErrSynthesizerInvalidSchema = errors.New("synthesizer returned invalid response")
)
