package tui

const (
	// Layout Offsets and Padding
	ProgressBarWidthOffset = 8
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0

	DefaultProgressWidth = 40
	MaxProgressWidth     = 80

	// Truncation for long names in the card title
	MaxFilenameWidth = 60
)
