package library

import (
	"go.uber.org/fx"
)

var Module = fx.Provide(
	fx.Annotate(
		NewMemoryRepository,
		fx.As(new(Repository)),
	),
)
