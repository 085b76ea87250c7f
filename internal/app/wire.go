//go:build wireinject
// +build wireinject

package app

import (
	"alphapilot/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(cfg *config.Config) (*App, error) {
	wire.Build(
		NewBuilder,
		provideAppFromBuilder,
	)
	return nil, nil
}
