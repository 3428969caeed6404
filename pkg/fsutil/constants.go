package fsutil

// File and directory permission constants used for everything written below
// the wordlist base directory.
const (
	FileModeDefault = 0o644 // -rw-r--r--: fetched and extracted wordlists
	FileModeSecure  = 0o640 // -rw-r-----: config files that may hold proxy credentials

	DirModeDefault = 0o755 // drwxr-xr-x: base and group directories
	DirModeSecure  = 0o750 // drwxr-x---: config directory

	// PartSuffix marks an in-progress HTTP transfer.
	PartSuffix = ".part"
)
