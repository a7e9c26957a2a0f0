package pricing

import "errors"

// ErrUnknownModel is returned when a model identifier matches no rate
// table entry. Costs are never silently reported as zero; callers log
// the model and exclude the record from cost totals explicitly.
var ErrUnknownModel = errors.New("unknown model: no pricing entry")
