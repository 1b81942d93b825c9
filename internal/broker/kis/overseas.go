package kis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"kis-trader/internal/interfaces"
	"kis-trader/internal/logger"
	"kis-trader/internal/types"
)

const (
	trOverseasPrice   = "HHDFS00000300"
	trOverseasBuy     = "TTTT1002U"
	trOverseasSell    = "TTTT1006U"
	trOverseasReserve = "TTTT3014U"
	trOverseasBalance = "TTTS3012R"

	pathOverseasPrice   = "/uapi/overseas-price/v1/quotations/price"
	pathOverseasOrder   = "/uapi/overseas-stock/v1/trading/order"
	pathOverseasReserve = "/uapi/overseas-stock/v1/trading/order-resv"
	pathOverseasBalance = "/uapi/overseas-stock/v1/trading/inquire-balance"
)

// Overseas executes US-market orders. The US gateways accept limit orders
// only, so inside regular hours the current price is submitted as the
// limit.
type Overseas struct {
	client   *Client
	guard    *Guard
	hours    tradingHours
	exchange string // EXCD for quotes: NAS, NYS, AMS
	currency string
	now      func() time.Time
}

var _ interfaces.Executor = (*Overseas)(nil)

func NewOverseas(client *Client, guard *Guard, exchange, currency string) *Overseas {
	return &Overseas{
		client:   client,
		guard:    guard,
		hours:    overseasHours(),
		exchange: exchange,
		currency: currency,
		now:      time.Now,
	}
}

// orderExchangeCode maps the quote exchange code to the longer code the
// trading endpoints expect.
func (o *Overseas) orderExchangeCode() string {
	switch o.exchange {
	case "NAS":
		return "NASD"
	case "NYS":
		return "NYSE"
	case "AMS":
		return "AMEX"
	}
	return o.exchange
}

type overseasPriceDTO struct {
	Output struct {
		Last string `json:"last"`
		Tvol string `json:"tvol"`
	} `json:"output"`
}

type overseasBalanceDTO struct {
	Output1 []struct {
		OvrsPdno        string `json:"ovrs_pdno"`
		OvrsItemName    string `json:"ovrs_item_name"`
		OvrsCblcQty     string `json:"ovrs_cblc_qty"`
		PchsAvgPric     string `json:"pchs_avg_pric"`
		NowPric2        string `json:"now_pric2"`
		OvrsStckEvluAmt string `json:"ovrs_stck_evlu_amt"`
		FrcrEvluPflsAmt string `json:"frcr_evlu_pfls_amt"`
		EvluPflsRt      string `json:"evlu_pfls_rt"`
	} `json:"output1"`
	Output2 struct {
		FrcrPchsAmt1    string `json:"frcr_pchs_amt1"`
		TotEvluPflsAmt  string `json:"tot_evlu_pfls_amt"`
		TotPftrt        string `json:"tot_pftrt"`
		OvrsTotPflsAmt  string `json:"ovrs_tot_pfls"`
		OvrsRlztPflsAmt string `json:"ovrs_rlzt_pfls_amt"`
	} `json:"output2"`
}

func (o *Overseas) CurrentPrice(ctx context.Context, symbol string) (types.StockPrice, error) {
	resp, err := o.client.Get(ctx, pathOverseasPrice, trOverseasPrice, map[string]string{
		"AUTH": "",
		"EXCD": o.exchange,
		"SYMB": symbol,
	})
	if err != nil {
		return types.StockPrice{}, err
	}
	if !resp.IsOK() {
		return types.StockPrice{}, fmt.Errorf("price lookup for %s failed: %s", symbol, resp.ErrorMessage())
	}

	var dto overseasPriceDTO
	if err := resp.Decode(&dto); err != nil {
		return types.StockPrice{}, fmt.Errorf("decode price response: %w", err)
	}

	price := parseFloat(dto.Output.Last)
	if price <= 0 {
		return types.StockPrice{}, fmt.Errorf("price lookup for %s returned no price", symbol)
	}

	return types.StockPrice{
		Symbol:   symbol,
		Price:    price,
		Volume:   parseInt(dto.Output.Tvol),
		Currency: o.currency,
		Time:     o.now(),
	}, nil
}

func (o *Overseas) Buy(ctx context.Context, symbol string, budget float64) (types.OrderResult, error) {
	release, ok, err := o.guard.Acquire(ctx, symbol)
	if err != nil {
		return types.OrderResult{}, err
	}
	if !ok {
		return inProgressResult(symbol, types.Buy), nil
	}
	defer release()

	price, err := o.CurrentPrice(ctx, symbol)
	if err != nil {
		return types.OrderResult{}, err
	}

	qty := int(budget / price.Price)
	if qty <= 0 {
		return types.OrderResult{
			Symbol:  symbol,
			Side:    string(types.Buy),
			Price:   price.Price,
			Message: fmt.Sprintf("quantity is zero: budget %.2f cannot buy one share at %.2f", budget, price.Price),
		}, nil
	}

	req := o.buildRequest(symbol, types.Buy, qty, price.Price)
	return o.submit(ctx, req, price.Price)
}

func (o *Overseas) Sell(ctx context.Context, symbol string) (types.OrderResult, error) {
	release, ok, err := o.guard.Acquire(ctx, symbol)
	if err != nil {
		return types.OrderResult{}, err
	}
	if !ok {
		return inProgressResult(symbol, types.Sell), nil
	}
	defer release()

	holdings, err := o.Portfolio(ctx)
	if err != nil {
		return types.OrderResult{}, err
	}

	var held *types.StockHolding
	for i := range holdings {
		if holdings[i].Symbol == symbol {
			held = &holdings[i]
			break
		}
	}
	if held == nil || held.Quantity == 0 {
		return types.OrderResult{
			Symbol:  symbol,
			Side:    string(types.Sell),
			Message: fmt.Sprintf("no holdings for %s", symbol),
		}, nil
	}

	price := held.CurrentPrice
	if price <= 0 {
		sp, err := o.CurrentPrice(ctx, symbol)
		if err != nil {
			return types.OrderResult{}, err
		}
		price = sp.Price
	}

	req := o.buildRequest(symbol, types.Sell, held.Quantity, price)
	return o.submit(ctx, req, price)
}

func (o *Overseas) buildRequest(symbol string, side types.OrderSide, qty int, price float64) types.OrderRequest {
	req := types.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Kind:       o.hours.kindAt(o.now()),
		LimitPrice: price,
	}
	if req.Kind == types.KindMarket {
		// US gateways take limit orders only.
		req.Kind = types.KindLimit
	}
	if req.Kind == types.KindReserved {
		req.ReservedEndDate = o.hours.reservedEndDate(o.now())
	}
	return req
}

func (o *Overseas) submit(ctx context.Context, req types.OrderRequest, price float64) (types.OrderResult, error) {
	env, err := o.client.session.EnsureFresh(ctx)
	if err != nil {
		return types.OrderResult{}, err
	}

	body := map[string]string{
		"CANO":            env.AccountNo,
		"ACNT_PRDT_CD":    env.AccountProductCode,
		"OVRS_EXCG_CD":    o.orderExchangeCode(),
		"PDNO":            req.Symbol,
		"ORD_QTY":         strconv.Itoa(req.Quantity),
		"OVRS_ORD_UNPR":   formatPrice(req.LimitPrice),
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":        ordDvsnLimit,
	}

	var resp *Response
	if req.Kind == types.KindReserved {
		sllBuy := "02"
		if req.Side == types.Sell {
			sllBuy = "01"
		}
		body["SLL_BUY_DVSN_CD"] = sllBuy
		body["RSVN_ORD_END_DT"] = req.ReservedEndDate
		resp, err = o.client.Post(ctx, pathOverseasReserve, trOverseasReserve, body)
	} else {
		trID := trOverseasBuy
		if req.Side == types.Sell {
			trID = trOverseasSell
		}
		resp, err = o.client.Post(ctx, pathOverseasOrder, trID, body)
	}
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("%s %s: %w; re-check the portfolio before retrying", req.Side, req.Symbol, err)
	}

	result := mapOrderResponse(resp, req, price)
	logger.Order(ctx, req.Symbol, string(req.Side), req.Quantity, price, result.OrderNo, result.Success, "kind", string(req.Kind), "exchange", o.exchange)
	return result, nil
}

func (o *Overseas) Portfolio(ctx context.Context) ([]types.StockHolding, error) {
	dto, err := o.fetchBalance(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]types.StockHolding, 0, len(dto.Output1))
	for _, h := range dto.Output1 {
		qty := int(parseInt(h.OvrsCblcQty))
		if qty == 0 {
			continue
		}
		holdings = append(holdings, types.StockHolding{
			Symbol:       h.OvrsPdno,
			Name:         h.OvrsItemName,
			Quantity:     qty,
			AvgPrice:     parseFloat(h.PchsAvgPric),
			CurrentPrice: parseFloat(h.NowPric2),
			EvalAmount:   parseFloat(h.OvrsStckEvluAmt),
			ProfitLoss:   parseFloat(h.FrcrEvluPflsAmt),
			ProfitRate:   parseFloat(h.EvluPflsRt),
		})
	}
	return holdings, nil
}

func (o *Overseas) AccountSummary(ctx context.Context) (types.AccountSummary, error) {
	dto, err := o.fetchBalance(ctx)
	if err != nil {
		return types.AccountSummary{}, err
	}

	invested := parseFloat(dto.Output2.FrcrPchsAmt1)
	pl := parseFloat(dto.Output2.TotEvluPflsAmt)
	return types.AccountSummary{
		TotalEval:       invested + pl,
		TotalProfitLoss: pl,
		TotalProfitRate: parseFloat(dto.Output2.TotPftrt),
	}, nil
}

func (o *Overseas) fetchBalance(ctx context.Context) (*overseasBalanceDTO, error) {
	env, err := o.client.session.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Get(ctx, pathOverseasBalance, trOverseasBalance, map[string]string{
		"CANO":           env.AccountNo,
		"ACNT_PRDT_CD":   env.AccountProductCode,
		"OVRS_EXCG_CD":   o.orderExchangeCode(),
		"TR_CRCY_CD":     o.currency,
		"CTX_AREA_FK200": "",
		"CTX_AREA_NK200": "",
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		return nil, fmt.Errorf("balance inquiry failed: %s", resp.ErrorMessage())
	}

	var dto overseasBalanceDTO
	if err := resp.Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode balance response: %w", err)
	}
	return &dto, nil
}
