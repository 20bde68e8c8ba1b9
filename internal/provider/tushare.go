// Package provider wraps the tushare HTTP data API: the raw wire protocol,
// ban classification, and a throttled validating client used by the sync
// workers.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"amarket/internal/domain"
)

const wireDateLayout = "20060102"

// TushareAPI is a low-level client for the tushare JSON-over-HTTP protocol.
// Every endpoint is a POST to the base URL with an api_name, the token, a
// params map, and a field list; the response is a tabular payload of field
// names plus row tuples.
type TushareAPI struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewTushareAPI creates a TushareAPI for the given endpoint and token.
func NewTushareAPI(baseURL, token string) *TushareAPI {
	return &TushareAPI{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string          `json:"fields"`
		Items  [][]json.RawMessage `json:"items"`
	} `json:"data"`
}

// table is a decoded tabular payload with column lookup by field name.
type table struct {
	index map[string]int
	rows  [][]json.RawMessage
}

func (t *table) str(row []json.RawMessage, field string) string {
	i, ok := t.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	var s string
	if err := json.Unmarshal(row[i], &s); err != nil {
		return ""
	}
	return s
}

func (t *table) num(row []json.RawMessage, field string) float64 {
	i, ok := t.index[field]
	if !ok || i >= len(row) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(row[i], &f); err != nil {
		return 0
	}
	return f
}

// call performs one API round trip. A non-zero payload code is surfaced as an
// error carrying the provider's message text, which is the only ban signal
// the upstream exposes.
func (a *TushareAPI) call(ctx context.Context, apiName string, params map[string]string, fields string) (*table, error) {
	reqBody, err := json.Marshal(apiRequest{
		APIName: apiName,
		Token:   a.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", apiName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", apiName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %s", apiName, resp.Status)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", apiName, err)
	}
	if payload.Code != 0 {
		return nil, fmt.Errorf("%s: provider error %d: %s", apiName, payload.Code, payload.Msg)
	}

	index := make(map[string]int, len(payload.Data.Fields))
	for i, f := range payload.Data.Fields {
		index[f] = i
	}
	return &table{index: index, rows: payload.Data.Items}, nil
}

// DailyBars fetches daily OHLCV rows for one security over [start, end].
// Rows come back in whatever order the provider chooses; callers sort and
// validate. Volume arrives in lots (手) and is stored as reported.
func (a *TushareAPI) DailyBars(ctx context.Context, code string, start, end time.Time) ([]domain.Bar, error) {
	tbl, err := a.call(ctx, "daily", map[string]string{
		"ts_code":    domain.ToTSCode(code),
		"start_date": start.Format(wireDateLayout),
		"end_date":   end.Format(wireDateLayout),
	}, "ts_code,trade_date,open,high,low,close,pre_close,change,vol,amount")
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(tbl.rows))
	for _, row := range tbl.rows {
		bareCode, _ := domain.FromTSCode(tbl.str(row, "ts_code"))
		if bareCode == "" {
			bareCode = code
		}
		var date time.Time
		if s := tbl.str(row, "trade_date"); s != "" {
			if d, perr := time.Parse(wireDateLayout, s); perr == nil {
				date = d
			}
		}
		bars = append(bars, domain.Bar{
			Code:     bareCode,
			Date:     date,
			Open:     tbl.num(row, "open"),
			High:     tbl.num(row, "high"),
			Low:      tbl.num(row, "low"),
			Close:    tbl.num(row, "close"),
			PreClose: tbl.num(row, "pre_close"),
			Change:   tbl.num(row, "change"),
			Volume:   int64(tbl.num(row, "vol")),
			Amount:   tbl.num(row, "amount"),
		})
	}
	return bars, nil
}

// TradingDates fetches the exchange trading calendar for [start, end],
// restricted to open days. Uses the Shanghai exchange calendar; the A-share
// exchanges share trading days.
func (a *TushareAPI) TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	tbl, err := a.call(ctx, "trade_cal", map[string]string{
		"exchange":   "SSE",
		"start_date": start.Format(wireDateLayout),
		"end_date":   end.Format(wireDateLayout),
		"is_open":    "1",
	}, "cal_date,is_open")
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(tbl.rows))
	for _, row := range tbl.rows {
		s := tbl.str(row, "cal_date")
		if s == "" {
			continue
		}
		d, perr := time.Parse(wireDateLayout, s)
		if perr != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// StockList fetches the listed-security universe.
func (a *TushareAPI) StockList(ctx context.Context) ([]domain.Stock, error) {
	tbl, err := a.call(ctx, "stock_basic", map[string]string{
		"list_status": "L",
	}, "ts_code,symbol,name,area,industry,market,exchange,list_status,list_date")
	if err != nil {
		return nil, err
	}

	stocks := make([]domain.Stock, 0, len(tbl.rows))
	for _, row := range tbl.rows {
		tsCode := tbl.str(row, "ts_code")
		code, exchange := domain.FromTSCode(tsCode)
		if code == "" {
			code = tbl.str(row, "symbol")
		}
		var listDate time.Time
		if s := tbl.str(row, "list_date"); s != "" {
			if d, perr := time.Parse(wireDateLayout, s); perr == nil {
				listDate = d
			}
		}
		stocks = append(stocks, domain.Stock{
			Code:       code,
			TSCode:     tsCode,
			Name:       tbl.str(row, "name"),
			Area:       tbl.str(row, "area"),
			Industry:   tbl.str(row, "industry"),
			Market:     tbl.str(row, "market"),
			Exchange:   exchange,
			ListStatus: tbl.str(row, "list_status"),
			ListDate:   listDate,
		})
	}
	return stocks, nil
}
