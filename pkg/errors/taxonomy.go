package errors

import "sort"

// Severity classifies a fault by what happens after it is surfaced
type Severity string

const (
	SeverityRecoverable Severity = "recoverable"
	SeverityFatal       Severity = "fatal"
)

// Kind tags a fault with what went wrong
type Kind string

// Application fault kinds
const (
	KindDrawing             Kind = "DrawingError"
	KindFileUpload          Kind = "FileUploadError"
	KindFileDownload        Kind = "FileDownloadError"
	KindAnnotationsMismatch Kind = "AnnotationsMismatchError"
	KindWebServerAPI        Kind = "WebServerApiError"
	KindGenericFatal        Kind = "GenericFatal"
	KindGenericRecoverable  Kind = "GenericRecoverableWarning"
)

// Key and encryption fault kinds
const (
	KindKeyUnavailable Kind = "KeyUnavailable"
	KindMalformedKey   Kind = "MalformedKey"
	KindEncryption     Kind = "EncryptionError"
)

// KindDefinition describes a fault kind
type KindDefinition struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Help    string `json:"help"`
}

// recoverable is the whitelist of kinds that do not terminate the process.
// Anything missing here is Fatal.
var recoverable = map[Kind]bool{
	KindWebServerAPI: true,
	KindDrawing:      true,
}

var definitions = map[Kind]KindDefinition{
	KindDrawing: {
		Kind:    KindDrawing,
		Message: "drawing failed",
		Help:    "The last edit was discarded; redraw the shape",
	},
	KindFileUpload: {
		Kind:    KindFileUpload,
		Message: "file upload failed",
		Help:    "Check connectivity to the portal and retry the upload",
	},
	KindFileDownload: {
		Kind:    KindFileDownload,
		Message: "file download failed",
		Help:    "Check connectivity to the portal and free disk space",
	},
	KindAnnotationsMismatch: {
		Kind:    KindAnnotationsMismatch,
		Message: "annotations do not match the task images",
		Help:    "Reload the task; local annotations may belong to another project",
	},
	KindWebServerAPI: {
		Kind:    KindWebServerAPI,
		Message: "portal request failed",
		Help:    "The portal rejected the request or is unavailable; try again later",
	},
	KindGenericFatal: {
		Kind:    KindGenericFatal,
		Message: "unexpected error",
		Help:    "Send the error log to support",
	},
	KindGenericRecoverable: {
		Kind:    KindGenericRecoverable,
		Message: "operation failed",
		Help:    "The operation was cancelled; the application can continue",
	},
	KindKeyUnavailable: {
		Kind:    KindKeyUnavailable,
		Message: "unable to retrieve public key from remote or local sources",
		Help:    "Connect to the portal once so the key can be cached locally",
	},
	KindMalformedKey: {
		Kind:    KindMalformedKey,
		Message: "public key is malformed",
		Help:    "The portal or the cached key file returned an unreadable key",
	},
	KindEncryption: {
		Kind:    KindEncryption,
		Message: "encryption failed",
		Help:    "The payload could not be encrypted for the portal",
	},
}

// Classify maps a kind to its severity. Unknown kinds are Fatal.
func Classify(kind Kind) Severity {
	if recoverable[kind] {
		return SeverityRecoverable
	}
	return SeverityFatal
}

// Lookup returns the definition of a kind, or a generic one if unknown
func Lookup(kind Kind) KindDefinition {
	if def, ok := definitions[kind]; ok {
		return def
	}
	return KindDefinition{
		Kind:    kind,
		Message: "unknown error",
		Help:    "No additional help available for this error",
	}
}

// Kinds returns every named kind, sorted
func Kinds() []Kind {
	result := make([]Kind, 0, len(definitions))
	for k := range definitions {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
