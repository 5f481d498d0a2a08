package exchange

import (
	"errors"
	"fmt"
	"net/http"
)

// ExchangeError представляет ошибку от биржи.
//
// Код биржи передаётся наверх без изменений; классификация
// (rate-limit / отказ / учётные данные) идёт поверх кода.
type ExchangeError struct {
	Exchange   string
	Code       int // код биржи (binance: отрицательные)
	Message    string
	HTTPStatus int
	Original   error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s: code=%d %s", e.Exchange, e.Code, e.Message)
}

// Unwrap поддерживает errors.Is/errors.As
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Retryable интегрируется с pkg/retry: повторяем только rate-limit
func (e *ExchangeError) Retryable() bool {
	return e.rateLimited()
}

func (e *ExchangeError) rateLimited() bool {
	return e.HTTPStatus == http.StatusTooManyRequests ||
		e.HTTPStatus == 418 || // бан за превышение лимитов
		e.Code == -1003 // TOO_MANY_REQUESTS
}

func (e *ExchangeError) credential() bool {
	switch e.Code {
	case -2014, -2015, -1022: // bad API key format, invalid key/IP, bad signature
		return true
	}
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden
}

// IsRateLimit проверяет является ли ошибка превышением лимита запросов
// (транзиентная, подлежит bounded retry с backoff)
func IsRateLimit(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.rateLimited()
}

// IsCredential проверяет является ли ошибка проблемой учётных данных
// (фатальна для всего пакета операций с этим credential)
func IsCredential(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.credential()
}

// IsRejection проверяет является ли ошибка бизнес-отказом биржи
// (неверный символ, точность, нехватка маржи - не повторяется)
func IsRejection(err error) bool {
	var ee *ExchangeError
	if !errors.As(err, &ee) {
		return false
	}
	return !ee.rateLimited() && !ee.credential()
}
