// Package cascade provides a Haar-cascade face detector backed by OpenCV.
// It needs no neural network weights and serves as the low-fidelity fallback.
//
// OpenCV is linked only when building with -tags opencv. Other builds get a
// New that always fails, which the fallback detector treats as an
// unavailable backend.
package cascade

import "errors"

// Confidence is reported for every cascade hit; the classifier yields no per-region score.
const Confidence float32 = 0.75

// ErrUnavailable is returned by New in builds without OpenCV.
var ErrUnavailable = errors.New("cascade detector not built in (build with -tags opencv)")
