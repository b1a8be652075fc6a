//go:build !cgo

package audio

import "errors"

func newMalgoBackend() (Backend, error) {
	return nil, errors.New("audio was disabled during compilation")
}
