package reconcile

import (
	"github.com/storelytics/tally/internal/reconcile/service"
	"github.com/storelytics/tally/pkg/telemetry"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(telemetry.NewMetrics),
	fx.Provide(service.NewService),
)
