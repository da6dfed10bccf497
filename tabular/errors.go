package tabular

import "errors"

var (
	// ErrNoDataset is returned when a tool is bound to a nil dataset.
	ErrNoDataset = errors.New("dataset is required")

	// ErrNoColumns is returned when the dataset has no columns to query.
	ErrNoColumns = errors.New("dataset has no columns")

	// ErrUnknownColumn is returned by helpers given a column the dataset lacks.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrNotNumeric is returned when a numeric helper meets a non-numeric cell.
	ErrNotNumeric = errors.New("value is not numeric")
)
