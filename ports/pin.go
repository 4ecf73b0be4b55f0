package ports

import "context"

// PinProvider supplies the user's PIN for a single protocol operation. It
// is invoked at most once per operation and may block until the user
// responds, honoring ctx cancellation. Returning an error or an empty
// string cancels the operation.
type PinProvider func(ctx context.Context) (string, error)
