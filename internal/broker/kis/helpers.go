package kis

import (
	"fmt"
	"strconv"
	"strings"

	"kis-trader/internal/types"
)

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func inProgressResult(symbol string, side types.OrderSide) types.OrderResult {
	return types.OrderResult{
		Symbol:  symbol,
		Side:    string(side),
		Message: fmt.Sprintf("order for %s already in progress", symbol),
	}
}

func mapOrderResponse(resp *Response, req types.OrderRequest, price float64) types.OrderResult {
	result := types.OrderResult{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Quantity:    req.Quantity,
		Price:       price,
		TotalAmount: price * float64(req.Quantity),
	}
	if !resp.IsOK() {
		result.Message = resp.ErrorMessage()
		return result
	}

	var dto orderDTO
	if err := resp.Decode(&dto); err != nil {
		result.Message = fmt.Sprintf("order accepted but response was unreadable: %v", err)
		return result
	}

	result.Success = true
	result.OrderNo = dto.Output.Odno
	result.Message = "ok"
	return result
}
