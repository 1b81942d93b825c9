package kis

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func usSessionClock() time.Time {
	loc := overseasHours().loc
	return time.Date(2026, 3, 2, 11, 0, 0, 0, loc)
}

const appleBalance = `{"rt_cd":"0","output1":[{"ovrs_pdno":"AAPL","ovrs_item_name":"Apple Inc","ovrs_cblc_qty":"4","pchs_avg_pric":"180.50","now_pric2":"195.20","ovrs_stck_evlu_amt":"780.80","frcr_evlu_pfls_amt":"58.80","evlu_pfls_rt":"8.14"}],"output2":{"frcr_pchs_amt1":"722.00","tot_evlu_pfls_amt":"58.80","tot_pftrt":"8.14"}}`

func newTestOverseas(t *testing.T, mux *http.ServeMux) (*Overseas, *orderCapture) {
	t.Helper()
	oc := &orderCapture{}
	mux.HandleFunc(pathOverseasOrder, oc.handler)
	mux.HandleFunc(pathOverseasReserve, oc.handler)
	srv := newBrokerServer(t, mux)

	o := NewOverseas(newTestClient(t, srv.URL), NewGuard(5), "NAS", "USD")
	o.now = usSessionClock
	return o, oc
}

func usPriceHandler(last string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rt_cd":"0","output":{"last":"` + last + `","tvol":"9999"}}`))
	}
}

func TestOverseasBuySubmitsLimitInsideSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathOverseasPrice, usPriceHandler("195.20"))
	o, oc := newTestOverseas(t, mux)

	res, err := o.Buy(context.Background(), "AAPL", 400)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("Expected success, got %q", res.Message)
	}
	if res.Quantity != 2 {
		t.Errorf("Expected quantity 2 (400/195.20), got %d", res.Quantity)
	}

	body := oc.bodies[0]
	if body["OVRS_EXCG_CD"] != "NASD" {
		t.Errorf("Expected trading exchange code NASD, got %q", body["OVRS_EXCG_CD"])
	}
	// The US gateway takes limit orders only, priced at the current quote.
	if body["ORD_DVSN"] != ordDvsnLimit {
		t.Errorf("Expected limit order, got ORD_DVSN %q", body["ORD_DVSN"])
	}
	if body["OVRS_ORD_UNPR"] != "195.2" {
		t.Errorf("Expected limit price 195.2, got %q", body["OVRS_ORD_UNPR"])
	}
	if oc.trIDs[0] != "VTTT1002U" {
		t.Errorf("Expected paper buy tr_id, got %s", oc.trIDs[0])
	}
}

func TestOverseasBuyNegativeBudgetNeverReachesBroker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathOverseasPrice, usPriceHandler("195.20"))
	o, oc := newTestOverseas(t, mux)

	res, err := o.Buy(context.Background(), "AAPL", -400)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if res.Success {
		t.Error("Expected failure result for a negative budget")
	}
	if oc.count != 0 {
		t.Errorf("Expected no order call for a negative quantity, got %d", oc.count)
	}
}

func TestOverseasSellUsesFreshHoldings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathOverseasPrice, usPriceHandler("195.20"))
	mux.HandleFunc(pathOverseasBalance, balanceHandler(appleBalance))
	o, oc := newTestOverseas(t, mux)

	res, err := o.Sell(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("Expected success, got %q", res.Message)
	}
	if oc.bodies[0]["ORD_QTY"] != "4" {
		t.Errorf("Expected ORD_QTY 4 from the balance inquiry, got %q", oc.bodies[0]["ORD_QTY"])
	}
	if oc.trIDs[0] != "VTTT1006U" {
		t.Errorf("Expected paper sell tr_id, got %s", oc.trIDs[0])
	}
}

func TestOverseasAccountSummary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathOverseasBalance, balanceHandler(appleBalance))
	o, _ := newTestOverseas(t, mux)

	summary, err := o.AccountSummary(context.Background())
	if err != nil {
		t.Fatalf("AccountSummary failed: %v", err)
	}
	if summary.TotalProfitLoss != 58.80 {
		t.Errorf("Expected P/L 58.80, got %v", summary.TotalProfitLoss)
	}
	if summary.TotalEval != 722.00+58.80 {
		t.Errorf("Expected eval %v, got %v", 722.00+58.80, summary.TotalEval)
	}
}

func TestOrderExchangeCode(t *testing.T) {
	cases := map[string]string{"NAS": "NASD", "NYS": "NYSE", "AMS": "AMEX", "HKS": "HKS"}
	for in, want := range cases {
		o := &Overseas{exchange: in}
		if got := o.orderExchangeCode(); got != want {
			t.Errorf("orderExchangeCode(%s) = %s, want %s", in, got, want)
		}
	}
}
