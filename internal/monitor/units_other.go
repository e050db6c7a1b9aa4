//go:build !linux

package monitor

import (
	"context"
	"errors"
)

var errUnitsUnsupported = errors.New("systemd unit checks are linux only")

type systemUnits struct{}

func (systemUnits) ActiveState(context.Context, string) (string, error) {
	return "", errUnitsUnsupported
}
