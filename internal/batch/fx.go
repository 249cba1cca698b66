package batch

import (
	"github.com/leadex/leadex/internal/batch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batch.service",
	fx.Provide(service.NewService),
)
