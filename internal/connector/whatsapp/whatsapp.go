// Package whatsapp provides both WhatsApp connection modes: the Business
// Cloud API (webhook driven, token credentials) and a personal account
// linked as a companion device over whatsmeow (QR login, persistent
// session).
package whatsapp

import (
	"fmt"

	"omnigate/internal/connector"
	"omnigate/internal/domain"
)

// NewConstructor returns the factory constructor for channel type
// "whatsapp". Business connectors mount webhook handlers on router;
// personal connectors keep their session databases under dataDir.
func NewConstructor(router *WebhookRouter, dataDir string) connector.Constructor {
	return func(rec domain.ChannelRecord, base *connector.Base) (domain.Connector, error) {
		switch rec.Mode {
		case domain.ModeBusiness:
			return newBusiness(rec, base, router)
		case domain.ModePersonal:
			return newPersonal(rec, base, dataDir)
		default:
			return nil, fmt.Errorf("whatsapp: unknown connection mode %q", rec.Mode)
		}
	}
}
