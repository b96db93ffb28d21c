package configstore

import "errors"

// ErrConfigNotFound is returned when no configuration is saved for a
// vendor/product pair.
var ErrConfigNotFound = errors.New("configstore: config not found")
