package source

import (
	"github.com/storelytics/tally/internal/source/service"
	"go.uber.org/fx"
)

var Module = fx.Module("source.service",
	fx.Provide(service.NewService),
)
