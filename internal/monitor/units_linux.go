//go:build linux

package monitor

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// systemUnits asks systemd over the system bus. A connection per probe keeps
// the monitor free of long-lived bus state.
type systemUnits struct{}

func (systemUnits) ActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return "", fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	prop, err := conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", fmt.Errorf("unit %s: %w", unit, err)
	}
	state, _ := prop.Value.Value().(string)
	return state, nil
}
