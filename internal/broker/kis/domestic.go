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
	trDomesticPrice   = "FHKST01010100"
	trDomesticBuy     = "TTTC0802U"
	trDomesticSell    = "TTTC0801U"
	trDomesticReserve = "CTSC0008U"
	trDomesticBalance = "TTTC8434R"

	pathDomesticPrice   = "/uapi/domestic-stock/v1/quotations/inquire-price"
	pathDomesticOrder   = "/uapi/domestic-stock/v1/trading/order-cash"
	pathDomesticReserve = "/uapi/domestic-stock/v1/trading/order-resv"
	pathDomesticBalance = "/uapi/domestic-stock/v1/trading/inquire-balance"

	ordDvsnLimit   = "00"
	ordDvsnMarket  = "01"
	ordDvsnClosing = "06"
)

// Domestic executes KRX cash orders.
type Domestic struct {
	client *Client
	guard  *Guard
	hours  tradingHours
	now    func() time.Time
}

var _ interfaces.Executor = (*Domestic)(nil)

func NewDomestic(client *Client, guard *Guard) *Domestic {
	return &Domestic{
		client: client,
		guard:  guard,
		hours:  domesticHours(),
		now:    time.Now,
	}
}

type domesticPriceDTO struct {
	Output struct {
		StckPrpr string `json:"stck_prpr"`
		AcmlVol  string `json:"acml_vol"`
	} `json:"output"`
}

type orderDTO struct {
	Output struct {
		Odno   string `json:"ODNO"`
		OrdTmd string `json:"ORD_TMD"`
	} `json:"output"`
}

type domesticBalanceDTO struct {
	Output1 []struct {
		Pdno        string `json:"pdno"`
		PrdtName    string `json:"prdt_name"`
		HldgQty     string `json:"hldg_qty"`
		PchsAvgPric string `json:"pchs_avg_pric"`
		Prpr        string `json:"prpr"`
		EvluAmt     string `json:"evlu_amt"`
		EvluPflsAmt string `json:"evlu_pfls_amt"`
		EvluPflsRt  string `json:"evlu_pfls_rt"`
	} `json:"output1"`
	Output2 []struct {
		DncaTotAmt      string `json:"dnca_tot_amt"`
		TotEvluAmt      string `json:"tot_evlu_amt"`
		EvluPflsSmtlAmt string `json:"evlu_pfls_smtl_amt"`
	} `json:"output2"`
}

func (d *Domestic) CurrentPrice(ctx context.Context, symbol string) (types.StockPrice, error) {
	resp, err := d.client.Get(ctx, pathDomesticPrice, trDomesticPrice, map[string]string{
		"fid_cond_mrkt_div_code": "J",
		"fid_input_iscd":         symbol,
	})
	if err != nil {
		return types.StockPrice{}, err
	}
	if !resp.IsOK() {
		return types.StockPrice{}, fmt.Errorf("price lookup for %s failed: %s", symbol, resp.ErrorMessage())
	}

	var dto domesticPriceDTO
	if err := resp.Decode(&dto); err != nil {
		return types.StockPrice{}, fmt.Errorf("decode price response: %w", err)
	}

	price := parseFloat(dto.Output.StckPrpr)
	if price <= 0 {
		return types.StockPrice{}, fmt.Errorf("price lookup for %s returned no price", symbol)
	}

	return types.StockPrice{
		Symbol:   symbol,
		Price:    price,
		Volume:   parseInt(dto.Output.AcmlVol),
		Currency: "KRW",
		Time:     d.now(),
	}, nil
}

func (d *Domestic) Buy(ctx context.Context, symbol string, budget float64) (types.OrderResult, error) {
	release, ok, err := d.guard.Acquire(ctx, symbol)
	if err != nil {
		return types.OrderResult{}, err
	}
	if !ok {
		return inProgressResult(symbol, types.Buy), nil
	}
	defer release()

	price, err := d.CurrentPrice(ctx, symbol)
	if err != nil {
		return types.OrderResult{}, err
	}

	qty := int(budget / price.Price)
	if qty <= 0 {
		return types.OrderResult{
			Symbol:  symbol,
			Side:    string(types.Buy),
			Price:   price.Price,
			Message: fmt.Sprintf("quantity is zero: budget %.0f cannot buy one share at %.0f", budget, price.Price),
		}, nil
	}

	req := d.buildRequest(symbol, types.Buy, qty, price.Price)
	return d.submit(ctx, req, price.Price)
}

func (d *Domestic) Sell(ctx context.Context, symbol string) (types.OrderResult, error) {
	release, ok, err := d.guard.Acquire(ctx, symbol)
	if err != nil {
		return types.OrderResult{}, err
	}
	if !ok {
		return inProgressResult(symbol, types.Sell), nil
	}
	defer release()

	// Never trust caller state for the quantity; sell exactly what the
	// account holds right now.
	holdings, err := d.Portfolio(ctx)
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
		sp, err := d.CurrentPrice(ctx, symbol)
		if err != nil {
			return types.OrderResult{}, err
		}
		price = sp.Price
	}

	req := d.buildRequest(symbol, types.Sell, held.Quantity, price)
	return d.submit(ctx, req, price)
}

func (d *Domestic) buildRequest(symbol string, side types.OrderSide, qty int, price float64) types.OrderRequest {
	req := types.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Kind:     d.hours.kindAt(d.now()),
	}
	switch req.Kind {
	case types.KindLimit:
		req.LimitPrice = price
	case types.KindReserved:
		req.LimitPrice = price
		req.ReservedEndDate = d.hours.reservedEndDate(d.now())
	}
	return req
}

func (d *Domestic) submit(ctx context.Context, req types.OrderRequest, price float64) (types.OrderResult, error) {
	env, err := d.client.session.EnsureFresh(ctx)
	if err != nil {
		return types.OrderResult{}, err
	}

	var resp *Response
	if req.Kind == types.KindReserved {
		sllBuy := "02" // buy
		if req.Side == types.Sell {
			sllBuy = "01"
		}
		resp, err = d.client.Post(ctx, pathDomesticReserve, trDomesticReserve, map[string]string{
			"CANO":            env.AccountNo,
			"ACNT_PRDT_CD":    env.AccountProductCode,
			"PDNO":            req.Symbol,
			"ORD_QTY":         strconv.Itoa(req.Quantity),
			"ORD_UNPR":        formatPrice(req.LimitPrice),
			"SLL_BUY_DVSN_CD": sllBuy,
			"ORD_DVSN_CD":     ordDvsnLimit,
			"RSVN_ORD_END_DT": req.ReservedEndDate,
		})
	} else {
		trID := trDomesticBuy
		if req.Side == types.Sell {
			trID = trDomesticSell
		}
		dvsn, unpr := ordDvsnMarket, "0"
		switch req.Kind {
		case types.KindLimit:
			dvsn, unpr = ordDvsnLimit, formatPrice(req.LimitPrice)
		case types.KindClosing:
			dvsn = ordDvsnClosing
		}
		resp, err = d.client.Post(ctx, pathDomesticOrder, trID, map[string]string{
			"CANO":         env.AccountNo,
			"ACNT_PRDT_CD": env.AccountProductCode,
			"PDNO":         req.Symbol,
			"ORD_DVSN":     dvsn,
			"ORD_QTY":      strconv.Itoa(req.Quantity),
			"ORD_UNPR":     unpr,
		})
	}
	if err != nil {
		// The order may have reached the broker even though the response
		// did not come back; the operator must re-check the portfolio
		// before retrying.
		return types.OrderResult{}, fmt.Errorf("%s %s: %w; re-check the portfolio before retrying", req.Side, req.Symbol, err)
	}

	result := mapOrderResponse(resp, req, price)
	logger.Order(ctx, req.Symbol, string(req.Side), req.Quantity, price, result.OrderNo, result.Success, "kind", string(req.Kind))
	return result, nil
}

func (d *Domestic) Portfolio(ctx context.Context) ([]types.StockHolding, error) {
	dto, err := d.fetchBalance(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]types.StockHolding, 0, len(dto.Output1))
	for _, h := range dto.Output1 {
		qty := int(parseInt(h.HldgQty))
		if qty == 0 {
			continue
		}
		holdings = append(holdings, types.StockHolding{
			Symbol:       h.Pdno,
			Name:         h.PrdtName,
			Quantity:     qty,
			AvgPrice:     parseFloat(h.PchsAvgPric),
			CurrentPrice: parseFloat(h.Prpr),
			EvalAmount:   parseFloat(h.EvluAmt),
			ProfitLoss:   parseFloat(h.EvluPflsAmt),
			ProfitRate:   parseFloat(h.EvluPflsRt),
		})
	}
	return holdings, nil
}

func (d *Domestic) AccountSummary(ctx context.Context) (types.AccountSummary, error) {
	dto, err := d.fetchBalance(ctx)
	if err != nil {
		return types.AccountSummary{}, err
	}
	if len(dto.Output2) == 0 {
		return types.AccountSummary{}, fmt.Errorf("balance response carried no account summary")
	}

	s := dto.Output2[0]
	summary := types.AccountSummary{
		TotalEval:       parseFloat(s.TotEvluAmt),
		Deposit:         parseFloat(s.DncaTotAmt),
		TotalProfitLoss: parseFloat(s.EvluPflsSmtlAmt),
	}
	if invested := summary.TotalEval - summary.TotalProfitLoss; invested > 0 {
		summary.TotalProfitRate = summary.TotalProfitLoss / invested * 100
	}
	return summary, nil
}

func (d *Domestic) fetchBalance(ctx context.Context) (*domesticBalanceDTO, error) {
	env, err := d.client.session.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Get(ctx, pathDomesticBalance, trDomesticBalance, map[string]string{
		"CANO":                  env.AccountNo,
		"ACNT_PRDT_CD":          env.AccountProductCode,
		"AFHR_FLPR_YN":          "N",
		"OFL_YN":                "",
		"INQR_DVSN":             "02",
		"UNPR_DVSN":             "01",
		"FUND_STTL_ICLD_YN":     "N",
		"FNCG_AMT_AUTO_RDPT_YN": "N",
		"PRCS_DVSN":             "01",
		"CTX_AREA_FK100":        "",
		"CTX_AREA_NK100":        "",
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		return nil, fmt.Errorf("balance inquiry failed: %s", resp.ErrorMessage())
	}

	var dto domesticBalanceDTO
	if err := resp.Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode balance response: %w", err)
	}
	return &dto, nil
}
