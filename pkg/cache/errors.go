package cache

import "fmt"

// Common cache errors.
var (
	// ErrCacheClean is returned when there's an error cleaning the base directory.
	ErrCacheClean = fmt.Errorf("failed to clean base directory")

	// ErrCacheInfo is returned when there's an error getting usage information.
	ErrCacheInfo = fmt.Errorf("failed to get base directory info")

	// ErrCacheDirectory is returned when there's an error with the directory.
	ErrCacheDirectory = fmt.Errorf("invalid base directory")
)
