package commands

import "time"

// nowFunc is swapped in tests to pin "today".
//
//nolint:gochecknoglobals // test seam
var nowFunc = time.Now
