package service

import "errors"

var (
	// ErrDriveDisabled is returned for Drive operations without configured credentials.
	ErrDriveDisabled = errors.New("google drive is not configured")

	// ErrUnsupportedFile is returned for uploads that are neither CSV nor XLSX.
	ErrUnsupportedFile = errors.New("unsupported file")

	// ErrInvalidInput wraps failures to read an uploaded pivot or order export.
	ErrInvalidInput = errors.New("invalid input")
)
