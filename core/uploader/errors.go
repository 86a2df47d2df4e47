package uploader

import (
	"errors"
	"strings"
)

// Sentinel errors for terminal upload failures. Retrying cannot fix any of
// these, so the worker fails fast instead of burning its backoff budget.
var (
	// ErrDuplicate means the server recognized the recording as already
	// present in the library.
	ErrDuplicate = errors.New("song already exists in the library")
	// ErrUnauthorized means the upload credential was rejected.
	ErrUnauthorized = errors.New("upload unauthorized")
	// ErrInvalidFile means the server rejected the payload as malformed or
	// unsupported.
	ErrInvalidFile = errors.New("invalid or unsupported file")
)

// terminalFragments classifies errors from endpoints that only give us
// text. Matches the deterministic-failure families: auth and validation.
var terminalFragments = []string{
	"unauthorized",
	"forbidden",
	"auth",
	"invalid",
	"malformed",
	"unsupported",
	"validation",
	"duplicate",
	"too large",
}

// IsTerminal reports whether an upload error is not worth retrying.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidFile) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range terminalFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
