package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Provider renders documents handed out to creatives.
type Provider interface {
	GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error)
}

var Module = fx.Module("pdf",
	fx.Provide(New),
)
