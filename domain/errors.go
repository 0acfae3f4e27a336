// domain/errors.go
package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidLayout       = errors.New("invalid layout")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrDownloadFailed      = errors.New("download failed")
	ErrNoGameplay          = errors.New("no gameplay attached to configuration")
	ErrIllegalTransition   = errors.New("illegal job status transition")
	ErrAlreadyClaimed      = errors.New("video reference already claimed")
	ErrTaskRevoked         = errors.New("task revoked")
	ErrPublishTimeout      = errors.New("media container not ready after max attempts")
)
