package withdrawal

import (
	"github.com/smallbiznis/tokenledger/internal/config"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"github.com/smallbiznis/tokenledger/internal/withdrawal/repository"
	"github.com/smallbiznis/tokenledger/internal/withdrawal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		func(svc ledgerdomain.Service) domain.BalanceReader { return svc },
		func(svc ledgerdomain.Service) domain.LedgerPoster { return svc },
		func(holder *config.PayoutConfigHolder) domain.PolicyProvider { return holder },
	),
	fx.Provide(service.NewService),
)
