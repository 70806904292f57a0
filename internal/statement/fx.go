package statement

import (
	"github.com/smallbiznis/tokenledger/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("statement.service",
	pdf.Module,
	fx.Provide(NewService),
)
