package c2pa

import (
	"fmt"
	"io"
)

type unavailableEngine struct {
	reason string
}

// Unavailable returns an Engine whose operations always fail with reason.
// Deployments link the native engine binding; a server built without it can
// still serve the certificate endpoints.
func Unavailable(reason string) Engine {
	return unavailableEngine{reason: reason}
}

func (e unavailableEngine) NewBuilder(manifestJSON string) (Builder, error) {
	return nil, fmt.Errorf("manifest engine unavailable: %s", e.reason)
}

func (e unavailableEngine) NewReader(format string, asset io.Reader) (Reader, error) {
	return nil, fmt.Errorf("manifest engine unavailable: %s", e.reason)
}
