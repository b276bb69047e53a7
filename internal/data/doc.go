// Package data turns TFRecord files of CIFAR-style tf.Example records into
// mini-batches.
//
// Pipeline:
//
//	TFRecord file -> RecordReader -> DecodeExample -> DecodeImage
//	  -> Standardize (mean/std artifact)
//	  -> Distort (training only: pad 4, random crop, random left/right flip)
//	  -> ShuffleBatcher (training) or SequentialBatcher (evaluation)
//
// Both batchers implement Source. Malformed records are fatal: they surface as
// an error wrapping ErrBadRecord from Source.Next and are never skipped.
package data

import "errors"

// Errors returned by the pipeline.
var (
	// ErrBadRecord marks a record that does not match the expected schema
	// (missing feature, wrong image size, label out of range, bad framing).
	ErrBadRecord = errors.New("data: bad record")

	// ErrBadMeanStd marks a missing or malformed mean/std artifact.
	ErrBadMeanStd = errors.New("data: bad mean/std artifact")
)
