package service

import (
	"testing"
	"time"

	"gridbot/internal/models"
	"gridbot/internal/repository"
)

func historyRows(n int) []*models.GridTradeHistory {
	rows := make([]*models.GridTradeHistory, n)
	for i := range rows {
		rows[i] = &models.GridTradeHistory{
			ID:         int64(n - i),
			StrategyID: 1,
			Symbol:     "BTCUSDT",
			Direction:  models.DirectionOpen,
			EntryTime:  time.Now().Add(-time.Duration(i) * time.Minute),
			Price:      50000,
			Quantity:   10,
		}
	}
	return rows
}

func TestHistoryServicePaginationDefaults(t *testing.T) {
	repo := &mockTradeRepo{items: historyRows(50)}
	svc := NewHistoryService(repo)

	page, err := svc.List(repository.HistoryFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if page.Page != 1 || page.PageSize != 20 {
		t.Errorf("пагинация по умолчанию = %d/%d, want 1/20", page.Page, page.PageSize)
	}
	if page.Total != 50 {
		t.Errorf("Total = %d, want 50", page.Total)
	}
	if len(page.Items) != 20 {
		t.Errorf("элементов = %d, want 20", len(page.Items))
	}
}

func TestHistoryServicePageSizeCap(t *testing.T) {
	repo := &mockTradeRepo{items: historyRows(300)}
	svc := NewHistoryService(repo)

	page, err := svc.List(repository.HistoryFilter{Page: 1, PageSize: 500})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if page.PageSize != 100 {
		t.Errorf("PageSize = %d, want cap 100", page.PageSize)
	}
	if len(page.Items) != 100 {
		t.Errorf("элементов = %d, want 100", len(page.Items))
	}
}

func TestHistoryServiceSecondPage(t *testing.T) {
	repo := &mockTradeRepo{items: historyRows(25)}
	svc := NewHistoryService(repo)

	page, err := svc.List(repository.HistoryFilter{Page: 2, PageSize: 20})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(page.Items) != 5 {
		t.Errorf("элементов на второй странице = %d, want 5", len(page.Items))
	}
}
