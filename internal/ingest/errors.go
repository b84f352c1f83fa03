package ingest

import "errors"

// ErrNotRelevant is returned by Process for messages that are not
// mobile-money notifications.
var ErrNotRelevant = errors.New("not a mobile money message")
