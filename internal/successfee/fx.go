package successfee

import (
	"github.com/smallbiznis/revshare/internal/successfee/repository"
	"github.com/smallbiznis/revshare/internal/successfee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("successfee.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
