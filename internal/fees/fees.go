// Package fees holds the trading and withdrawal fee schedule used to turn a
// raw price spread into a net profit.
package fees

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"arbscout/internal/model"
)

// ErrConfig marks a fee configuration defect. It is fatal for a run: a missing
// trading fee must never silently default to zero.
var ErrConfig = errors.New("fee configuration error")

// ExchangeFees is the fee schedule of a single exchange.
type ExchangeFees struct {
	// TradingFee is a fraction of the traded amount, e.g. 0.001 for 0.1%.
	TradingFee float64
	// WithdrawalFees maps an asset to its flat withdrawal fee in units of
	// that asset.
	WithdrawalFees map[string]float64
}

// AssetExchange names an (asset, exchange) pair.
type AssetExchange struct {
	Asset    string
	Exchange string
}

// Model is an immutable fee schedule. It is safe for concurrent use.
type Model struct {
	trading    map[string]float64
	withdrawal map[AssetExchange]float64
}

// NewModel builds a Model keyed by exchange name. Names and asset codes are
// normalized, so lookups are case-insensitive.
func NewModel(byExchange map[string]ExchangeFees) (*Model, error) {
	m := &Model{
		trading:    make(map[string]float64, len(byExchange)),
		withdrawal: make(map[AssetExchange]float64),
	}
	for name, ef := range byExchange {
		exchange := model.NormalizeExchange(name)
		if exchange == "" {
			return nil, fmt.Errorf("%w: empty exchange name", ErrConfig)
		}
		if math.IsNaN(ef.TradingFee) || ef.TradingFee < 0 || ef.TradingFee >= 1 {
			return nil, fmt.Errorf("%w: trading fee %v for %s is outside [0, 1)", ErrConfig, ef.TradingFee, exchange)
		}
		m.trading[exchange] = ef.TradingFee

		for asset, fee := range ef.WithdrawalFees {
			if math.IsNaN(fee) || math.IsInf(fee, 0) || fee < 0 {
				return nil, fmt.Errorf("%w: withdrawal fee %v for %s on %s", ErrConfig, fee, asset, exchange)
			}
			m.withdrawal[AssetExchange{Asset: model.NormalizeAsset(asset), Exchange: exchange}] = fee
		}
	}
	return m, nil
}

// TradingFee returns the fee rate charged by exchange on each execution.
func (m *Model) TradingFee(exchange string) (float64, error) {
	fee, ok := m.trading[model.NormalizeExchange(exchange)]
	if !ok {
		return 0, fmt.Errorf("%w: no trading fee for exchange %q", ErrConfig, exchange)
	}
	return fee, nil
}

// WithdrawalFee returns the flat fee, in units of asset, for withdrawing asset
// from exchange. Unknown pairs return 0; use MissingWithdrawalFees to find
// them up front.
func (m *Model) WithdrawalFee(asset, exchange string) float64 {
	return m.withdrawal[AssetExchange{
		Asset:    model.NormalizeAsset(asset),
		Exchange: model.NormalizeExchange(exchange),
	}]
}

// Exchanges returns the exchanges with a trading fee, sorted.
func (m *Model) Exchanges() []string {
	names := make([]string, 0, len(m.trading))
	for name := range m.trading {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MissingWithdrawalFees lists every (asset, exchange) combination that has no
// explicit withdrawal fee and would therefore be priced as free to withdraw.
func (m *Model) MissingWithdrawalFees(assets, exchanges []string) []AssetExchange {
	var missing []AssetExchange
	for _, asset := range assets {
		for _, exchange := range exchanges {
			key := AssetExchange{Asset: model.NormalizeAsset(asset), Exchange: model.NormalizeExchange(exchange)}
			if _, ok := m.withdrawal[key]; !ok {
				missing = append(missing, key)
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Asset != missing[j].Asset {
			return missing[i].Asset < missing[j].Asset
		}
		return missing[i].Exchange < missing[j].Exchange
	})
	return missing
}
