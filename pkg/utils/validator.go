package utils

// validator.go - валидация торговых входных данных

import (
	"errors"
	"regexp"
)

// Ошибки валидации
var (
	ErrEmptySymbol       = errors.New("symbol must not be empty")
	ErrInvalidSymbol     = errors.New("invalid symbol format")
	ErrLeverageRange     = errors.New("leverage must be an integer between 1 and 125")
	ErrNegativeValue     = errors.New("value must be greater than 0")
	ErrNegativePrecision = errors.New("precision must be >= 0")
)

// Символ перпетуала: заглавные буквы/цифры, 5-20 символов (BTCUSDT, 1000PEPEUSDT)
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// ValidateSymbol проверяет формат торгового символа
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	if !symbolPattern.MatchString(symbol) {
		return ErrInvalidSymbol
	}
	return nil
}

// ValidateLeverage проверяет плечо: целое в [1, 125]
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 125 {
		return ErrLeverageRange
	}
	return nil
}

// ValidatePositive проверяет что значение строго положительно
func ValidatePositive(v float64) error {
	if v <= 0 {
		return ErrNegativeValue
	}
	return nil
}

// ValidatePrecision проверяет точность: целое >= 0
func ValidatePrecision(p int) error {
	if p < 0 {
		return ErrNegativePrecision
	}
	return nil
}
