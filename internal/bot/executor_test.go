package bot

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/models"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		OrderTimeout:      5 * time.Second,
		LegDelay:          time.Millisecond,
		MaxSymbolWorkers:  4,
		MaxRetries:        1, // без повторов в тестах
		LeverageSyncLimit: 5,
	}
}

func newTestExecutor(client *mockClient) *HedgeExecutor {
	return NewHedgeExecutor(&mockFactory{client: client}, testEngineConfig(), zap.NewNop())
}

func rejectionErr() error {
	return &exchange.ExchangeError{Exchange: "mock", Code: -2019, Message: "Margin is insufficient", HTTPStatus: http.StatusBadRequest}
}

func credentialErr() error {
	return &exchange.ExchangeError{Exchange: "mock", Code: -2015, Message: "Invalid API-key", HTTPStatus: http.StatusUnauthorized}
}

func openIntentFor(symbol string) OrderIntent {
	return OrderIntent{
		Symbol:       symbol,
		PositionSide: models.PositionSideLong,
		Direction:    models.DirectionOpen,
		Quantity:     1,
	}
}

// Отказ одного символа не прерывает остальные: [A, B-отказ, C]
func TestBuildPositionsPartialFailure(t *testing.T) {
	client := newMockClient()
	client.placeErr["BBBUSDT"] = rejectionErr()
	executor := newTestExecutor(client)

	intents := []OrderIntent{
		openIntentFor("AAAUSDT"),
		openIntentFor("BBBUSDT"),
		openIntentFor("CCCUSDT"),
	}

	batch, err := executor.BuildPositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, intents)
	if err != nil {
		t.Fatalf("BuildPositions() error = %v", err)
	}

	if batch.Summary.Total != 3 || batch.Summary.Success != 2 || batch.Summary.Failed != 1 {
		t.Errorf("summary = %+v, want total=3 success=2 failed=1", batch.Summary)
	}

	for _, r := range batch.Results {
		wantSuccess := r.Symbol != "BBBUSDT"
		if r.Success != wantSuccess {
			t.Errorf("результат %s: success=%v, want %v", r.Symbol, r.Success, wantSuccess)
		}
	}
}

// Ошибка учётных данных обрывает пакет целиком
func TestBuildPositionsCredentialAbort(t *testing.T) {
	client := newMockClient()
	client.placeErr["AAAUSDT"] = credentialErr()
	executor := newTestExecutor(client)

	// Обе ноги одного символа: вторая не должна исполниться
	intents := []OrderIntent{
		openIntentFor("AAAUSDT"),
		{Symbol: "AAAUSDT", PositionSide: models.PositionSideShort, Direction: models.DirectionOpen, Quantity: 1},
	}

	_, err := executor.BuildPositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, intents)
	if !errors.Is(err, ErrBatchAborted) {
		t.Fatalf("BuildPositions() error = %v, want ErrBatchAborted", err)
	}

	if n := len(client.placed()); n != 0 {
		t.Errorf("исполнено ордеров после credential ошибки = %d, want 0", n)
	}
}

func TestBuildPositionsEmptyBatch(t *testing.T) {
	executor := newTestExecutor(newMockClient())

	if _, err := executor.BuildPositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, nil); !errors.Is(err, ErrNoIntents) {
		t.Errorf("BuildPositions(nil) error = %v, want ErrNoIntents", err)
	}
}

// Ноги одного символа идут последовательно и в заданном порядке
func TestBuildPositionsHedgeLegOrder(t *testing.T) {
	client := newMockClient()
	executor := newTestExecutor(client)

	intents := []OrderIntent{
		{Symbol: "AAAUSDT", PositionSide: models.PositionSideLong, Direction: models.DirectionOpen, Quantity: 2},
		{Symbol: "AAAUSDT", PositionSide: models.PositionSideShort, Direction: models.DirectionOpen, Quantity: 2},
	}

	_, err := executor.BuildPositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, intents)
	if err != nil {
		t.Fatalf("BuildPositions() error = %v", err)
	}

	placed := client.placed()
	if len(placed) != 2 {
		t.Fatalf("исполнено ордеров = %d, want 2", len(placed))
	}
	if placed[0].PositionSide != exchange.PositionLong || placed[1].PositionSide != exchange.PositionShort {
		t.Errorf("порядок ног %s, %s; want LONG, SHORT", placed[0].PositionSide, placed[1].PositionSide)
	}
	// Открытие лонга - покупка, открытие шорта - продажа
	if placed[0].Side != exchange.SideBuy || placed[1].Side != exchange.SideSell {
		t.Errorf("стороны ордеров %s, %s; want BUY, SELL", placed[0].Side, placed[1].Side)
	}
}

func TestClosePositionsPercentage(t *testing.T) {
	client := newMockClient()
	client.positions = []*exchange.Position{
		{Symbol: "AAAUSDT", PositionSide: exchange.PositionLong, Amount: 40, MarkPrice: 100},
	}
	executor := newTestExecutor(client)

	intents := []OrderIntent{
		{Symbol: "AAAUSDT", PositionSide: models.PositionSideLong, Direction: models.DirectionClose, Percentage: 25},
	}

	batch, err := executor.ClosePositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, intents, CloseByPercentage)
	if err != nil {
		t.Fatalf("ClosePositions() error = %v", err)
	}
	if batch.Summary.Success != 1 {
		t.Fatalf("summary = %+v, want success=1", batch.Summary)
	}

	placed := client.placed()
	if len(placed) != 1 {
		t.Fatalf("исполнено ордеров = %d, want 1", len(placed))
	}
	// 25% от позиции 40
	if placed[0].Quantity != 10 {
		t.Errorf("quantity = %v, want 10", placed[0].Quantity)
	}
	if !placed[0].ReduceOnly {
		t.Error("закрытие должно быть reduce-only")
	}
	// Закрытие лонга - продажа
	if placed[0].Side != exchange.SideSell {
		t.Errorf("side = %s, want SELL", placed[0].Side)
	}
}

func TestClosePositionsPercentageNoPosition(t *testing.T) {
	client := newMockClient()
	executor := newTestExecutor(client)

	intents := []OrderIntent{
		{Symbol: "AAAUSDT", PositionSide: models.PositionSideLong, Direction: models.DirectionClose, Percentage: 50},
	}

	// Позиции нет - намерение растворяется, пакет пуст
	_, err := executor.ClosePositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, intents, CloseByPercentage)
	if !errors.Is(err, ErrNoIntents) {
		t.Errorf("ClosePositions() error = %v, want ErrNoIntents", err)
	}
}

func TestClosePositionsInvalidMode(t *testing.T) {
	executor := newTestExecutor(newMockClient())

	intents := []OrderIntent{openIntentFor("AAAUSDT")}
	_, err := executor.ClosePositions(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, intents, CloseMode("ratio"))
	if !errors.Is(err, ErrInvalidCloseMode) {
		t.Errorf("ClosePositions() error = %v, want ErrInvalidCloseMode", err)
	}
}

func TestSetLeverageValidation(t *testing.T) {
	tests := []struct {
		name     string
		settings []LeverageSetting
	}{
		{"плечо 0", []LeverageSetting{{Symbol: "AAAUSDT", Leverage: 0}}},
		{"плечо 126", []LeverageSetting{{Symbol: "AAAUSDT", Leverage: 126}}},
		{"отрицательное плечо", []LeverageSetting{{Symbol: "AAAUSDT", Leverage: -5}}},
		{"пустой символ", []LeverageSetting{{Symbol: "", Leverage: 10}}},
		{
			"один некорректный портит пакет",
			[]LeverageSetting{{Symbol: "AAAUSDT", Leverage: 10}, {Symbol: "BBBUSDT", Leverage: 126}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			executor := newTestExecutor(client)

			_, err := executor.SetLeverage(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, tt.settings, 0)
			if !errors.Is(err, ErrInvalidLeverage) {
				t.Fatalf("SetLeverage() error = %v, want ErrInvalidLeverage", err)
			}
			// Валидация до любого биржевого вызова
			if client.leverageCallCount() != 0 {
				t.Errorf("биржевых вызовов = %d, want 0", client.leverageCallCount())
			}
		})
	}
}

func TestSetLeverageSyncBatch(t *testing.T) {
	client := newMockClient()
	client.leverageErr["DDDUSDT"] = rejectionErr()
	executor := newTestExecutor(client)

	settings := []LeverageSetting{
		{Symbol: "AAAUSDT", Leverage: 10},
		{Symbol: "BBBUSDT", Leverage: 20},
		{Symbol: "CCCUSDT", Leverage: 10},
		{Symbol: "DDDUSDT", Leverage: 50},
	}

	report, err := executor.SetLeverage(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, settings, 0)
	if err != nil {
		t.Fatalf("SetLeverage() error = %v", err)
	}

	if report.Accepted {
		t.Error("пакет из 4 должен исполняться синхронно")
	}
	if len(report.Results) != 4 {
		t.Fatalf("результатов = %d, want 4", len(report.Results))
	}
	if report.SuccessRate != "75.00%" {
		t.Errorf("SuccessRate = %q, want \"75.00%%\"", report.SuccessRate)
	}
}

func TestSetLeverageAsyncBatch(t *testing.T) {
	client := newMockClient()
	executor := newTestExecutor(client)

	settings := make([]LeverageSetting, 6)
	for i := range settings {
		settings[i] = LeverageSetting{Symbol: "AAAUSDT", Leverage: 10}
	}

	report, err := executor.SetLeverage(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"}, settings, 0)
	if err != nil {
		t.Fatalf("SetLeverage() error = %v", err)
	}

	// Пакет из 6 уходит в фон: сразу accepted без поштучных результатов
	if !report.Accepted {
		t.Error("пакет из 6 должен вернуть accepted")
	}
	if len(report.Results) != 0 {
		t.Errorf("результатов = %d, want 0 при асинхронном исполнении", len(report.Results))
	}
}

func TestApplyMarginProfile(t *testing.T) {
	client := newMockClient()
	executor := newTestExecutor(client)

	err := executor.ApplyMarginProfile(context.Background(),
		exchange.Credentials{APIKey: "k", SecretKey: "s"}, "BTCUSDT", 20, models.MarginTypeCross)
	if err != nil {
		t.Fatalf("ApplyMarginProfile() error = %v", err)
	}

	if len(client.marginCalls) != 1 || client.marginCalls[0] != "BTCUSDT" {
		t.Errorf("marginCalls = %v, want [BTCUSDT]", client.marginCalls)
	}
	if len(client.leverageCalls) != 1 || client.leverageCalls[0] != "BTCUSDT" {
		t.Errorf("leverageCalls = %v, want [BTCUSDT]", client.leverageCalls)
	}
}

func TestApplyMarginProfileInvalidLeverage(t *testing.T) {
	for _, leverage := range []int{0, -1, 126} {
		client := newMockClient()
		executor := newTestExecutor(client)

		err := executor.ApplyMarginProfile(context.Background(),
			exchange.Credentials{APIKey: "k", SecretKey: "s"}, "BTCUSDT", leverage, "")
		if !errors.Is(err, ErrInvalidLeverage) {
			t.Errorf("ApplyMarginProfile(leverage=%d) error = %v, want ErrInvalidLeverage", leverage, err)
		}
		if client.leverageCallCount() != 0 || len(client.marginCalls) != 0 {
			t.Errorf("leverage=%d: биржевые вызовы при невалидном плече", leverage)
		}
	}
}

// -4046 "No need to change margin type" не прерывает применение плеча
func TestApplyMarginProfileMarginUnchanged(t *testing.T) {
	client := newMockClient()
	client.marginErr["BTCUSDT"] = &exchange.ExchangeError{
		Exchange: "mock", Code: -4046, Message: "No need to change margin type", HTTPStatus: http.StatusBadRequest,
	}
	executor := newTestExecutor(client)

	err := executor.ApplyMarginProfile(context.Background(),
		exchange.Credentials{APIKey: "k", SecretKey: "s"}, "BTCUSDT", 20, models.MarginTypeIsolated)
	if err != nil {
		t.Fatalf("ApplyMarginProfile() error = %v, want nil при -4046", err)
	}
	if client.leverageCallCount() != 1 {
		t.Errorf("плечо должно применяться после -4046, вызовов = %d", client.leverageCallCount())
	}
}

func TestApplyMarginProfileMarginRejected(t *testing.T) {
	client := newMockClient()
	client.marginErr["BTCUSDT"] = rejectionErr()
	executor := newTestExecutor(client)

	err := executor.ApplyMarginProfile(context.Background(),
		exchange.Credentials{APIKey: "k", SecretKey: "s"}, "BTCUSDT", 20, models.MarginTypeIsolated)
	if err == nil {
		t.Fatal("ожидалась ошибка при отказе SetMarginType")
	}
	if client.leverageCallCount() != 0 {
		t.Errorf("плечо не должно применяться после отказа маржи, вызовов = %d", client.leverageCallCount())
	}
}

func TestInspectHedgeSymmetry(t *testing.T) {
	tests := []struct {
		name      string
		positions []*exchange.Position
		want      []string // символы в отчёте
	}{
		{
			"сбалансированный хедж не отчитывается",
			[]*exchange.Position{
				{Symbol: "AAAUSDT", PositionSide: exchange.PositionLong, Amount: 5},
				{Symbol: "AAAUSDT", PositionSide: exchange.PositionShort, Amount: 3},
			},
			nil,
		},
		{
			"только лонг",
			[]*exchange.Position{
				{Symbol: "BBBUSDT", PositionSide: exchange.PositionLong, Amount: 5},
			},
			[]string{"BBBUSDT"},
		},
		{
			"только шорт",
			[]*exchange.Position{
				{Symbol: "CCCUSDT", PositionSide: exchange.PositionShort, Amount: 2},
			},
			[]string{"CCCUSDT"},
		},
		{
			"пустые позиции не отчитываются",
			nil,
			nil,
		},
		{
			"смешанный набор",
			[]*exchange.Position{
				{Symbol: "AAAUSDT", PositionSide: exchange.PositionLong, Amount: 5},
				{Symbol: "AAAUSDT", PositionSide: exchange.PositionShort, Amount: 5},
				{Symbol: "BBBUSDT", PositionSide: exchange.PositionShort, Amount: 1},
			},
			[]string{"BBBUSDT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			client.positions = tt.positions
			executor := newTestExecutor(client)

			got, err := executor.InspectHedgeSymmetry(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"})
			if err != nil {
				t.Fatalf("InspectHedgeSymmetry() error = %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("отчёт = %+v, want символы %v", got, tt.want)
			}
			for i, symbol := range tt.want {
				if got[i].Symbol != symbol {
					t.Errorf("отчёт[%d].Symbol = %s, want %s", i, got[i].Symbol, symbol)
				}
			}
		})
	}
}
