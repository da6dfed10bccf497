package ingestion

import "errors"

var (
	// ErrEmptyFile is returned when an upload has no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")

	// ErrNoText is returned when a PDF yields no extractable text, as with scanned images.
	ErrNoText = errors.New("no extractable text found")

	// ErrNoHeader is returned when a CSV file has no header row.
	ErrNoHeader = errors.New("missing header row")
)
