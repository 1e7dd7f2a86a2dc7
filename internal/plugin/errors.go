// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

import "github.com/samber/oops"

// ErrorKind classifies a terminal load failure. The kind is carried as the
// oops error code so it survives wrapping across package boundaries.
type ErrorKind string

// Load failure kinds.
const (
	// KindNetwork covers bundle resolution and fetch failures.
	KindNetwork ErrorKind = "network"
	// KindParse covers a malformed or missing manifest shape.
	KindParse ErrorKind = "parse"
	// KindRuntime covers exceptions while instantiating or executing
	// plugin code.
	KindRuntime ErrorKind = "runtime"
	// KindDisabled is the pre-load policy gate for disabled plugins.
	KindDisabled ErrorKind = "disabled"
	// KindMissingConfig is the pre-load policy gate for metadata without
	// a load location.
	KindMissingConfig ErrorKind = "missing-config"
)

// knownKinds enumerates kinds recognized by Classify.
var knownKinds = map[string]ErrorKind{
	string(KindNetwork):       KindNetwork,
	string(KindParse):         KindParse,
	string(KindRuntime):       KindRuntime,
	string(KindDisabled):      KindDisabled,
	string(KindMissingConfig): KindMissingConfig,
}

// Classify extracts the error kind from an error produced by the load path.
// Unclassified errors default to KindRuntime.
func Classify(err error) ErrorKind {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, isStr := oopsErr.Code().(string); isStr {
			if kind, known := knownKinds[code]; known {
				return kind
			}
		}
	}
	return KindRuntime
}

// Errorf creates a kind-classified error.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return oops.In("plugin").Code(string(kind)).Errorf(format, args...)
}

// WrapKind wraps err with a kind classification and message, preserving the
// underlying error for display and logging.
func WrapKind(kind ErrorKind, err error, message string) error {
	return oops.In("plugin").Code(string(kind)).Wrapf(err, "%s", message)
}
