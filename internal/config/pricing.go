package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingTable is the validated tier and region schedule. Region codes are
// upper-cased and tier names lower-cased.
type PricingTable struct {
	TierPrices        map[string]int64
	RegionMultipliers map[string]decimal.Decimal
}

type rawPricing struct {
	Tiers   map[string]int64  `mapstructure:"tiers"`
	Regions map[string]string `mapstructure:"regions"`
}

func defaultPricing() rawPricing {
	return rawPricing{
		Tiers: map[string]int64{
			"basic":        299,
			"professional": 699,
			"growth":       1299,
			"elite":        2499,
		},
		Regions: map[string]string{
			"US":      "1.00",
			"EU":      "1.15",
			"APAC":    "1.25",
			"LATAM":   "1.10",
			"MEA":     "1.20",
			"AFRICA":  "1.18",
			"OCEANIA": "1.22",
			"MX":      "0.65",
		},
	}
}

func DefaultPricingTable() PricingTable {
	table, err := buildPricingTable(defaultPricing())
	if err != nil {
		panic(err)
	}
	return table
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingTable
}

// NewStaticPricingHolder returns a holder that never reloads.
func NewStaticPricingHolder(table PricingTable) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(table)
	return holder
}

func NewPricingConfigHolder(log *zap.Logger) (*PricingConfigHolder, error) {
	log = log.Named("pricing.config")
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/revshare")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
		defaults := defaultPricing()
		v.SetDefault("pricing.tiers", defaults.Tiers)
		v.SetDefault("pricing.regions", defaults.Regions)
	}

	table, err := unmarshalPricing(v)
	if err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(table)

	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalPricing(v)
		if err != nil {
			log.Warn("invalid pricing config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingTable {
	return h.current.Load().(PricingTable)
}

func unmarshalPricing(v *viper.Viper) (PricingTable, error) {
	var raw rawPricing
	if err := v.UnmarshalKey("pricing", &raw); err != nil {
		return PricingTable{}, err
	}
	return buildPricingTable(raw)
}

func buildPricingTable(raw rawPricing) (PricingTable, error) {
	if len(raw.Tiers) == 0 {
		return PricingTable{}, errors.New("pricing.tiers cannot be empty")
	}
	table := PricingTable{
		TierPrices:        make(map[string]int64, len(raw.Tiers)),
		RegionMultipliers: make(map[string]decimal.Decimal, len(raw.Regions)),
	}
	for name, price := range raw.Tiers {
		tier, ok := tenantdomain.ParseTier(name)
		if !ok {
			return PricingTable{}, fmt.Errorf("pricing.tiers.%s is not a known tier", name)
		}
		if price <= 0 {
			return PricingTable{}, fmt.Errorf("pricing.tiers.%s must be positive", name)
		}
		table.TierPrices[string(tier)] = price
	}
	for region, rawMultiplier := range raw.Regions {
		multiplier, err := decimal.NewFromString(strings.TrimSpace(rawMultiplier))
		if err != nil {
			return PricingTable{}, fmt.Errorf("pricing.regions.%s: %w", region, err)
		}
		if !multiplier.IsPositive() {
			return PricingTable{}, fmt.Errorf("pricing.regions.%s must be positive", region)
		}
		table.RegionMultipliers[strings.ToUpper(strings.TrimSpace(region))] = multiplier
	}
	return table, nil
}
