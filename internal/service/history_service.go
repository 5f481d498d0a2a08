package service

import (
	"gridbot/internal/models"
	"gridbot/internal/repository"
)

// Пагинация истории сделок
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HistoryService - чтение истории сделок
type HistoryService struct {
	tradeRepo TradeRepositoryInterface
}

// NewHistoryService создает новый экземпляр сервиса истории
func NewHistoryService(tradeRepo TradeRepositoryInterface) *HistoryService {
	return &HistoryService{tradeRepo: tradeRepo}
}

// HistoryPage - страница истории с метаданными пагинации
type HistoryPage struct {
	Items    []*models.GridTradeHistory `json:"items"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// List возвращает страницу истории, новые сделки первыми
func (s *HistoryService) List(filter repository.HistoryFilter) (*HistoryPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	total, err := s.tradeRepo.Count(filter)
	if err != nil {
		return nil, err
	}

	items, err := s.tradeRepo.List(filter)
	if err != nil {
		return nil, err
	}

	return &HistoryPage{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}
