package connector

import (
	"fmt"

	"omnigate/internal/domain"
)

// Constructor builds a platform connector from its channel row and the
// prepared Base. Registered per channel type in a plain map; adding a
// platform means adding one entry, no reflection.
type Constructor func(rec domain.ChannelRecord, base *Base) (domain.Connector, error)

type Factory struct {
	ctors map[string]Constructor
}

func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

func (f *Factory) Register(channel string, ctor Constructor) {
	f.ctors[channel] = ctor
}

func (f *Factory) Supported(channel string) bool {
	_, ok := f.ctors[channel]
	return ok
}

func (f *Factory) Build(rec domain.ChannelRecord, base *Base) (domain.Connector, error) {
	ctor, ok := f.ctors[rec.Channel]
	if !ok {
		return nil, fmt.Errorf("unsupported channel type: %s", rec.Channel)
	}
	return ctor(rec, base)
}
