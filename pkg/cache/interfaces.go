package cache

// CleanOptions specifies what to remove from the base directory.
type CleanOptions struct {
	// Partials removes interrupted ".part" downloads; they can no longer resume.
	Partials bool
	// Descriptors removes ".torrent" files left next to fetched payloads.
	Descriptors bool
}

// CleanResult contains information about what was removed.
type CleanResult struct {
	TotalFreed      int64
	PartialFreed    int64
	DescriptorFreed int64
	Removed         []string
}

// GroupInfo is the disk usage of one group directory.
type GroupInfo struct {
	Name  string
	Size  int64
	Files int
}

// Info represents base directory usage.
type Info struct {
	Directory string
	TotalSize int64
	Groups    []GroupInfo

	PartialSize     int64
	PartialFiles    int
	DescriptorSize  int64
	DescriptorFiles int
}
