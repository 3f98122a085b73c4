package royalty

import (
	"github.com/smallbiznis/revshare/internal/ratelimit"
	"github.com/smallbiznis/revshare/internal/royalty/repository"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"github.com/smallbiznis/revshare/internal/royalty/service"
	"go.uber.org/fx"
)

var Module = fx.Module("royalty.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideLocker),
	fx.Provide(service.New),
)

// provideLocker keeps a nil *ratelimit.Locker from becoming a non-nil
// interface.
func provideLocker(l *ratelimit.Locker) royaltydomain.Locker {
	if l == nil {
		return nil
	}
	return l
}
