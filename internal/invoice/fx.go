package invoice

import (
	"errors"
	"strings"

	"github.com/smallbiznis/revshare/internal/config"
	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	"github.com/smallbiznis/revshare/internal/invoice/provider/memory"
	"github.com/smallbiznis/revshare/internal/invoice/provider/stripe"
	"github.com/smallbiznis/revshare/internal/invoice/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("invoice.dispatcher",
	fx.Provide(NewProvider),
	fx.Provide(service.New),
	fx.Provide(service.NewDispatcher),
)

// NewProvider selects Stripe when a secret key is configured. Outside
// production an in-process provider stands in.
func NewProvider(cfg config.Config, log *zap.Logger) (invoicedomain.Provider, error) {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key != "" {
		return stripe.New(key, log), nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("STRIPE_SECRET_KEY is required in production")
	}
	log.Warn("no invoicing provider configured, using in-memory provider")
	return memory.New(), nil
}
