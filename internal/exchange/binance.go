package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"gridbot/internal/config"
	"gridbot/internal/models"
	"gridbot/pkg/ratelimit"
)

// jsoniter в горячем пути декодирования: ответы positionRisk и klines
// приходят на каждый тик каждой стратегии
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const binanceRecvWindow = "5000"

// Binance реализует интерфейс Client для Binance USDT-M futures
type Binance struct {
	baseURL   string
	apiKey    string
	secretKey string

	httpClient *http.Client
	limiter    *ratelimit.Limiter
	timeout    time.Duration
}

// NewBinance создаёт клиент, привязанный к учётным данным.
// Использует общий HTTP клиент с connection pooling.
func NewBinance(cfg config.ExchangeConfig, creds Credentials) *Binance {
	return &Binance{
		baseURL:    cfg.BaseURL,
		apiKey:     creds.APIKey,
		secretKey:  creds.SecretKey,
		httpClient: SharedHTTPClient(),
		limiter:    ratelimit.New(cfg.RateLimit, cfg.RateBurst),
		timeout:    cfg.RequestTimeout,
	}
}

func (b *Binance) Name() string {
	return "binance"
}

// sign подписывает query string HMAC-SHA256
func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет запрос к REST API.
//
// Для signed запросов добавляет timestamp, recvWindow и подпись.
// Ошибки биржи возвращаются как *ExchangeError с кодом без изменений.
func (b *Binance) doRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if params == nil {
		params = url.Values{}
	}
	payload := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", binanceRecvWindow)
		// Подпись считается по итоговой строке параметров и добавляется
		// строго в хвост: сервер сверяет HMAC со всем, что до signature
		payload = params.Encode()
		payload += "&signature=" + b.sign(payload)
	}

	reqURL := b.baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		if payload != "" {
			reqURL += "?" + payload
		}
	} else {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed || b.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, b.asExchangeError(resp.StatusCode, raw)
	}

	return raw, nil
}

// asExchangeError разбирает envelope {"code":-NNNN,"msg":"..."}
func (b *Binance) asExchangeError(status int, raw []byte) error {
	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(raw, &envelope)
	if envelope.Msg == "" {
		envelope.Msg = http.StatusText(status)
	}
	return &ExchangeError{
		Exchange:   "binance",
		Code:       envelope.Code,
		Message:    envelope.Msg,
		HTTPStatus: status,
	}
}

// PlaceOrder размещает ордер (hedge mode: positionSide обязателен)
func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side)
	params.Set("positionSide", req.PositionSide)
	if req.Type == "" {
		req.Type = OrderTypeMarket
	}
	params.Set("type", req.Type)
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = "grid-" + uuid.NewString()
	}
	params.Set("newClientOrderId", clientID)
	params.Set("newOrderRespType", "RESULT")

	raw, err := b.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		PositionSide  string `json:"positionSide"`
		Status        string `json:"status"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
		UpdateTime    int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	executed, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)

	return &Order{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          resp.Side,
		PositionSide:  resp.PositionSide,
		Status:        resp.Status,
		ExecutedQty:   executed,
		AvgPrice:      avgPrice,
		UpdatedAt:     time.UnixMilli(resp.UpdateTime),
	}, nil
}

// CancelOrder отменяет ордер по id
func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := b.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, true)
	return err
}

// GetOpenPositions возвращает позиции с ненулевым размером
func (b *Binance) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Symbol        string `json:"symbol"`
		PositionSide  string `json:"positionSide"`
		PositionAmt   string `json:"positionAmt"`
		EntryPrice    string `json:"entryPrice"`
		MarkPrice     string `json:"markPrice"`
		UnrealizedPnl string `json:"unRealizedProfit"`
		Leverage      string `json:"leverage"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]*Position, 0, len(rows))
	for _, row := range rows {
		amt, _ := strconv.ParseFloat(row.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		if amt < 0 {
			amt = -amt
		}
		entry, _ := strconv.ParseFloat(row.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(row.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(row.UnrealizedPnl, 64)
		lev, _ := strconv.Atoi(row.Leverage)

		positions = append(positions, &Position{
			Symbol:        row.Symbol,
			PositionSide:  row.PositionSide,
			Amount:        amt,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPnl: pnl,
			Leverage:      lev,
		})
	}

	return positions, nil
}

// GetBalance возвращает баланс USDT фьючерсного кошелька
func (b *Binance) GetBalance(ctx context.Context) (float64, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return 0, err
	}

	var rows []struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}

	for _, row := range rows {
		if row.Asset == "USDT" {
			balance, _ := strconv.ParseFloat(row.Balance, 64)
			return balance, nil
		}
	}
	return 0, nil
}

// SetLeverage устанавливает плечо для символа
func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	_, err := b.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params, true)
	return err
}

// SetMarginType устанавливает тип маржи
func (b *Binance) SetMarginType(ctx context.Context, symbol, marginType string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	switch marginType {
	case models.MarginTypeIsolated:
		params.Set("marginType", "ISOLATED")
	default:
		params.Set("marginType", "CROSSED")
	}

	_, err := b.doRequest(ctx, http.MethodPost, "/fapi/v1/marginType", params, true)
	return err
}

// GetKlines возвращает исторические свечи (public endpoint)
func (b *Binance) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	raw, err := b.doRequest(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, err
	}

	// Формат: [[openTime,"open","high","low","close","volume",...], ...]
	var rows [][]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		candle := models.Candle{OpenTime: time.UnixMilli(openTime)}
		fields := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
		for i, dst := range fields {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				continue
			}
			*dst, _ = strconv.ParseFloat(s, 64)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// ServerTime возвращает время биржи (public endpoint)
func (b *Binance) ServerTime(ctx context.Context) (time.Time, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/fapi/v1/time", nil, false)
	if err != nil {
		return time.Time{}, err
	}

	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}

	return time.UnixMilli(resp.ServerTime), nil
}
