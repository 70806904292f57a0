package payouttier

import (
	"github.com/smallbiznis/tokenledger/internal/payouttier/repository"
	"github.com/smallbiznis/tokenledger/internal/payouttier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payouttier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
