package binance

import (
	"context"
	"fmt"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/adshao/go-binance/v2"
	"github.com/samber/lo"
)

// 过期/下架币种
var binanceOverdueSymbolBase = []string{
	"BCC", "VEN", "PAX", "BCHABC", "BCHSV", "WAVES", "BTT", "USDS", "XMR", "NANO", "OMG",
	"MITH", "MATIC", "FTM", "USDSB", "GTO", "ERD", "NPXS", "COCOS", "TOMO", "PERL", "MFT",
	"KEY", "STORM", "DOCK", "BUSD", "BEAM", "REN", "HC", "MCO", "VITE", "DREP", "BULL", "BEAR",
	"ETHBULL", "ETHBEAR", "TCT", "WRX", "BTS", "EOSBULL", "EOSBEAR", "XRPBULL", "XRPBEAR", "START", "AION",
	"BNBBULL", "BNBBEAR", "WTC", "XZC", "BTCUP", "BTCDOWN", "GXS", "LEND", "STMX", "REP", "PNT", "BKRW",
	"ETHUP", "ETHDOWN", "ADAUP", "ADADOWN", "LINKUP", "LINKDOWN", "GBP", "DAI", "XTZUP", "XTZDOWN",
	"AUD", "BLZ", "IRIS", "KMD", "JST", "SRM", "ANT", "OCEAN", "WNXM", "BZRX", "YFII", "EOSUP", "EOSDOWN",
	"TRXUP", "TRXDOWN", "DOTUP", "DOTDOWN", "LTCUP", "LTCDOWN", "NBS", "HNT", "UNIUP", "UNIDOWN",
	"ORN", "SXPUP", "SXPDOWN", "FILUP", "FILDOWN", "YFIUP", "YFIDOWN", "BCHUP", "BCHDOWN", "UNFI",
	"XEM", "AAVEUP", "AAVEDOWN", "SUSD", "SUSHIUP", "SUSHIDOWN", "XLMUP", "XLMDOWN", "REEF", "BTCST",
	"LIT", "LINA", "RANP", "EPS", "AUTO", "1INCHUP", "1INCHDOWN", "BTG", "MIR", "BURGER", "MDX",
	"NU", "TORN", "KEEP", "ERN", "KLAY", "CLV", "TVK", "BOND", "FOR", "TRIBE", "POLY", "FRONT", "CVP",
	"DAR", "BNX", "RGT", "KP3R", "VGX", "PLA", "RNDR", "MC", "ANY", "OOKI", "ANC", "NBT", "MULTI",
	"GAL", "EPX", "POLYX", "AGIX", "AMB", "BETH", "LOOM", "OAX", "AERGO", "AST", "COMBO", "GFT",
	"STRAT", "BNBUP", "BNBDOWN", "XRPUP", "XRPDOWN", "AKRO", "DNT", "RAMP", "POLS", "UST", "MOB",
	"NEBL",

	"USDC", "FUSDT", "USDP",
}

var _ exchange.SymbolService = (*SymbolService)(nil)

type SymbolService struct {
	cli         *binance.Client
	overdueBase map[string]struct{}
}

func NewSymbolService(cli *binance.Client) *SymbolService {
	return &SymbolService{
		cli: cli,
		overdueBase: lo.SliceToMap(binanceOverdueSymbolBase, func(item string) (string, struct{}) {
			return item, struct{}{}
		}),
	}
}

// ListedPairs 过滤出交易所正在交易且未下架的交易对, 保持 candidates 的顺序
func (svc *SymbolService) ListedPairs(ctx context.Context, candidates []exchange.TradingPair) ([]exchange.TradingPair, error) {
	info, err := svc.cli.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange info: %v", domain.ErrDataUnavailable, err)
	}
	trading := lo.SliceToMap(
		lo.Filter(info.Symbols, func(item binance.Symbol, index int) bool {
			return item.Status == string(binance.SymbolStatusTypeTrading)
		}),
		func(item binance.Symbol) (string, struct{}) {
			return item.BaseAsset + item.QuoteAsset, struct{}{}
		},
	)
	return lo.Filter(svc.filterOverdue(candidates), func(item exchange.TradingPair, index int) bool {
		_, ok := trading[item.ToString()]
		return ok
	}), nil
}

// filterOverdue 过滤掉过期的币种
func (svc *SymbolService) filterOverdue(s []exchange.TradingPair) []exchange.TradingPair {
	return lo.Reject(s, func(item exchange.TradingPair, index int) bool {
		if _, ok := svc.overdueBase[item.Base]; ok {
			return true
		}
		return false
	})
}
