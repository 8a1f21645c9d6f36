package service

import (
	"errors"
	"fmt"

	"scanalytics-backend/internal/model"
)

// MaskedErrorMessage is the only failure text ever shown to callers.
const MaskedErrorMessage = "Internal System Error: Analytics Engine Offline."

var (
	ErrUpstream        = errors.New("upstream model call failed")
	ErrUpstreamTimeout = fmt.Errorf("%w: deadline exceeded", ErrUpstream)

	ErrProviderNotConfigured = model.ErrProviderNotConfigured
)
