package domain

import (
	"context"
	"fmt"
)

// ConnectionMode distinguishes API-token channels from QR-linked devices.
type ConnectionMode string

const (
	ModeBusiness ConnectionMode = "business"
	ModePersonal ConnectionMode = "personal"
)

// ConnectorStatus is the lifecycle state of a connector.
type ConnectorStatus string

const (
	StatusDisconnected ConnectorStatus = "disconnected"
	StatusConnecting   ConnectorStatus = "connecting"
	StatusQR           ConnectorStatus = "qr"
	StatusConnected    ConnectorStatus = "connected"
	StatusLoggedOut    ConnectorStatus = "logged_out"
	StatusError        ConnectorStatus = "error"
)

// ConnectorKey identifies one connector instance. The registry holds at
// most one live connector per key.
type ConnectorKey struct {
	Owner   string
	Channel string
	Mode    ConnectionMode
}

func (k ConnectorKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Owner, k.Channel, k.Mode)
}

// Connector is the contract every platform adapter satisfies. Start must
// not block beyond connection establishment; long-running receive loops
// run in their own goroutines. Status, Live, Connecting and RetryPending
// are the accessors the registry uses for staleness detection instead of
// probing private fields.
type Connector interface {
	Key() ConnectorKey
	Status() ConnectorStatus
	Live() bool
	Connecting() bool
	RetryPending() bool
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, peer, text string) error
	SendImage(ctx context.Context, peer, url, caption string) error
}
