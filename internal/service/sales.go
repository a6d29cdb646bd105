package service

import (
	"context"
	"encoding/base64"
	"strings"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/stats"
)

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := s.authorize(ctx, domain.CapViewSales); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.FindSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, storeErr("find sale", err)
	}
	return *sale, nil
}

// ListSales returns sales between two local dates, both inclusive, newest
// first. With no dates it covers the current month.
func (s *Service) ListSales(ctx context.Context, from string, to string) ([]domain.Sale, error) {
	if _, err := s.authorize(ctx, domain.CapViewSales); err != nil {
		return nil, err
	}

	period := stats.PeriodCustom
	if strings.TrimSpace(from) == "" && strings.TrimSpace(to) == "" {
		period = stats.PeriodMonth
	}
	rng, ok, err := stats.ResolveRange(period, s.now(), s.loc, from, to)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if !ok {
		return nil, invalid("both from and to are required")
	}

	sales, err := s.repo.QuerySales(ctx, rng.Start.UTC(), rng.End.UTC())
	if err != nil {
		return nil, storeErr("query sales", err)
	}
	return sales, nil
}

func (s *Service) SaleReceipt(ctx context.Context, id string) (domain.ReceiptResponse, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	doc := s.renderReceipt(sale)
	return domain.ReceiptResponse{
		SaleID:       sale.ID,
		PreviewText:  doc.Text,
		EscposBase64: base64.StdEncoding.EncodeToString(doc.EscPos),
		FileName:     doc.FileName,
	}, nil
}
