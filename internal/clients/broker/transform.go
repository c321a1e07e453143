package broker

import (
	"fmt"

	"github.com/vvolkov/rebalancer/internal/domain"
)

// The Tradernet RPC returns loosely-typed JSON (numbers as either string
// or float64 depending on endpoint, optional fields simply absent). These
// helpers extract fields defensively rather than failing the whole
// response over one malformed entry (spec.md §7's MalformedFeed policy:
// degrade, don't halt).

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", val)
	}
	return ""
}

func getFloat64(m map[string]interface{}, key string) float64 {
	if val, ok := m[key]; ok {
		return toFloat64(val)
	}
	return 0
}

func getInt64(m map[string]interface{}, key string) int64 {
	return int64(getFloat64(m, key))
}

func toFloat64(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func resultSection(resp map[string]interface{}) map[string]interface{} {
	if result, ok := resp["result"].(map[string]interface{}); ok {
		return result
	}
	return resp
}

func asArray(v interface{}) []interface{} {
	arr, _ := v.([]interface{})
	return arr
}

func transformPositions(resp map[string]interface{}) []domain.BrokerPosition {
	result := resultSection(resp)
	ps, _ := result["ps"].(map[string]interface{})
	var rawPositions []interface{}
	if ps != nil {
		rawPositions = asArray(ps["pos"])
	} else {
		rawPositions = asArray(result["pos"])
	}

	positions := make([]domain.BrokerPosition, 0, len(rawPositions))
	for _, item := range rawPositions {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		positions = append(positions, domain.BrokerPosition{
			Symbol:   getString(m, "i"),
			FIGI:     getString(m, "figi"),
			Quantity: getFloat64(m, "q"),
			LotSize:  maxInt64(1, getInt64(m, "lot_size")),
			Price:    getString(m, "mkt_price"),
			Currency: getString(m, "curr"),
		})
	}
	return positions
}

func transformCashBalances(resp map[string]interface{}) []domain.BrokerCashBalance {
	result := resultSection(resp)
	ps, _ := result["ps"].(map[string]interface{})
	var rawBalances []interface{}
	if ps != nil {
		rawBalances = asArray(ps["acc"])
	} else {
		rawBalances = asArray(result["acc"])
	}

	balances := make([]domain.BrokerCashBalance, 0, len(rawBalances))
	for _, item := range rawBalances {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		balances = append(balances, domain.BrokerCashBalance{
			Currency: getString(m, "curr"),
			Amount:   getFloat64(m, "s"),
		})
	}
	return balances
}

func transformOrderResult(resp map[string]interface{}, symbol, side string, quantity float64) *domain.BrokerOrderResult {
	result := resultSection(resp)
	return &domain.BrokerOrderResult{
		OrderID:  getString(result, "order_id"),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    getFloat64(result, "price"),
	}
}

func transformQuotes(resp map[string]interface{}) map[string]*domain.BrokerQuote {
	result := resultSection(resp)
	rawQuotes := asArray(result["quotes"])

	quotes := make(map[string]*domain.BrokerQuote, len(rawQuotes))
	for _, item := range rawQuotes {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		symbol := getString(m, "c") // ticker code
		if symbol == "" {
			continue
		}
		quotes[symbol] = &domain.BrokerQuote{
			Symbol: symbol,
			Price:  getString(m, "ltp"), // last traded price
		}
	}
	return quotes
}

func transformSecurityInfo(resp map[string]interface{}) *domain.BrokerSecurityInfo {
	result := resultSection(resp)
	matches := asArray(result["result"])
	if len(matches) == 0 {
		return nil
	}
	m, ok := matches[0].(map[string]interface{})
	if !ok {
		return nil
	}
	return &domain.BrokerSecurityInfo{
		Symbol:        getString(m, "ticker"),
		FIGI:          getString(m, "figi"),
		LotSize:       maxInt64(1, getInt64(m, "lot_size")),
		ClassCode:     getString(m, "instr_type"),
		Exchange:      getString(m, "exchange"),
		TradingStatus: getString(m, "trade_status"),
	}
}

func transformFXRates(resp map[string]interface{}) map[string]float64 {
	result := resultSection(resp)
	rates := make(map[string]float64)
	for currency, v := range result {
		rates[currency] = toFloat64(v)
	}
	return rates
}

func transformTradingSchedule(exchange string, resp map[string]interface{}) *domain.TradingSchedule {
	result := resultSection(resp)
	rawDays := asArray(result["days"])

	days := make([]domain.TradingDay, 0, len(rawDays))
	for _, item := range rawDays {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		days = append(days, domain.TradingDay{
			Date:         getString(m, "date"),
			IsTradingDay: getFloat64(m, "is_trading_day") != 0,
			StartTime:    getInt64(m, "start_time"),
			EndTime:      getInt64(m, "end_time"),
		})
	}
	return &domain.TradingSchedule{Exchange: exchange, Days: days}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
