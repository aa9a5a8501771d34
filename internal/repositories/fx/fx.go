package fx

import (
	"github.com/skazkalab/fairytale-engine/internal/repositories/ledger"
	"github.com/skazkalab/fairytale-engine/internal/repositories/library"
	"go.uber.org/fx"
)

var Module = fx.Options(
	library.Module,
	ledger.Module,
)
