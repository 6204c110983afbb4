package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"trading-engine/config"
	"trading-engine/internal/engine"
	"trading-engine/internal/models"
)

// instrumentDTO is the upstream quotes API response shape. Prices arrive as
// JSON numbers or strings; decimal handles both without float rounding.
type instrumentDTO struct {
	Symbol        string          `json:"symbol"`
	CompanyName   string          `json:"companyName"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	Volume        int64           `json:"volume"`
	OpenPrice     decimal.Decimal `json:"openPrice"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	DayHigh       decimal.Decimal `json:"dayHigh"`
	DayLow        decimal.Decimal `json:"dayLow"`
	WeekHigh52    decimal.Decimal `json:"weekHigh52"`
	WeekLow52     decimal.Decimal `json:"weekLow52"`
}

// MarketDataService fetches full instrument snapshots over REST. When the
// upstream API is down it falls back to a deterministic in-process mock so
// the registry always has seed data, and retries the real API after a
// cooldown.
type MarketDataService struct {
	client *resty.Client

	mu             sync.Mutex
	useMock        bool
	lastAPISuccess time.Time
	mockPrices     map[string]decimal.Decimal
}

const mockCooldown = 30 * time.Minute

func NewMarketDataService(cfg *config.Config) *MarketDataService {
	client := resty.New().
		SetDebug(cfg.MarketAPI.Debug).
		SetTimeout(cfg.MarketAPI.Timeout).
		SetBaseURL(cfg.MarketAPI.URL)

	return &MarketDataService{
		client:         client,
		lastAPISuccess: time.Now(),
		mockPrices: map[string]decimal.Decimal{
			"AAPL":  decimal.RequireFromString("175.50"),
			"GOOGL": decimal.RequireFromString("138.25"),
			"MSFT":  decimal.RequireFromString("330.80"),
			"TSLA":  decimal.RequireFromString("210.75"),
			"AMZN":  decimal.RequireFromString("178.90"),
		},
	}
}

// FetchAllInstruments returns full snapshots for every listed instrument.
func (m *MarketDataService) FetchAllInstruments(ctx context.Context) ([]models.InstrumentSnapshot, error) {
	if !m.mockOnly() {
		snaps, err := m.fetchAll(ctx)
		if err == nil {
			m.markAPISuccess()
			return snaps, nil
		}
		slog.Warn("quotes API failed, switching to mock data", slog.Any("error", err))
		m.markAPIFailure()
	}

	return m.mockAll(), nil
}

// FetchInstrument returns the full snapshot for one symbol.
func (m *MarketDataService) FetchInstrument(ctx context.Context, symbol string) (models.InstrumentSnapshot, error) {
	if !m.mockOnly() {
		snap, err := m.fetchOne(ctx, symbol)
		if err == nil {
			m.markAPISuccess()
			return snap, nil
		}
		slog.Warn("quotes API failed for symbol, switching to mock data",
			slog.String("symbol", symbol), slog.Any("error", err))
		m.markAPIFailure()
	}

	return m.mockOne(symbol), nil
}

// RefreshRegistry seeds or refreshes every instrument in the registry from a
// full snapshot fetch. Run at startup and by the periodic scheduler job; the
// full snapshots also release any ticks the reconciler buffered for symbols
// the registry had not seen yet.
func (m *MarketDataService) RefreshRegistry(ctx context.Context, registry *engine.Registry) error {
	snaps, err := m.FetchAllInstruments(ctx)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		if err := registry.Upsert(snap); err != nil {
			slog.Warn("skipping invalid snapshot", slog.String("symbol", snap.Symbol), slog.Any("error", err))
		}
	}

	slog.Info("registry refreshed", slog.Int("instruments", len(snaps)))
	return nil
}

func (m *MarketDataService) fetchAll(ctx context.Context) ([]models.InstrumentSnapshot, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/market/stocks")
	if err != nil {
		return nil, fmt.Errorf("quotes API request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("quotes API returned status %d", resp.StatusCode())
	}

	var dtos []instrumentDTO
	if err := json.Unmarshal(resp.Body(), &dtos); err != nil {
		return nil, fmt.Errorf("parse quotes response: %w", err)
	}

	snaps := make([]models.InstrumentSnapshot, 0, len(dtos))
	for _, dto := range dtos {
		snaps = append(snaps, dto.toSnapshot())
	}
	return snaps, nil
}

func (m *MarketDataService) fetchOne(ctx context.Context, symbol string) (models.InstrumentSnapshot, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/market/stocks/" + strings.ToUpper(symbol))
	if err != nil {
		return models.InstrumentSnapshot{}, fmt.Errorf("quotes API request failed: %w", err)
	}
	if resp.IsError() {
		return models.InstrumentSnapshot{}, fmt.Errorf("quotes API returned status %d for %s", resp.StatusCode(), symbol)
	}

	var dto instrumentDTO
	if err := json.Unmarshal(resp.Body(), &dto); err != nil {
		return models.InstrumentSnapshot{}, fmt.Errorf("parse quote response: %w", err)
	}
	if dto.Symbol == "" {
		return models.InstrumentSnapshot{}, fmt.Errorf("no data returned for symbol %s", symbol)
	}
	return dto.toSnapshot(), nil
}

func (dto instrumentDTO) toSnapshot() models.InstrumentSnapshot {
	return models.InstrumentSnapshot{
		Symbol:        strings.ToUpper(dto.Symbol),
		CompanyName:   dto.CompanyName,
		CurrentPrice:  dto.CurrentPrice,
		Volume:        dto.Volume,
		OpenPrice:     dto.OpenPrice,
		PreviousClose: dto.PreviousClose,
		DayHigh:       dto.DayHigh,
		DayLow:        dto.DayLow,
		WeekHigh52:    dto.WeekHigh52,
		WeekLow52:     dto.WeekLow52,
	}
}

func (m *MarketDataService) mockOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.useMock && time.Since(m.lastAPISuccess) <= mockCooldown
}

func (m *MarketDataService) markAPISuccess() {
	m.mu.Lock()
	m.useMock = false
	m.lastAPISuccess = time.Now()
	m.mu.Unlock()
}

func (m *MarketDataService) markAPIFailure() {
	m.mu.Lock()
	m.useMock = true
	m.mu.Unlock()
}

func (m *MarketDataService) mockAll() []models.InstrumentSnapshot {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.mockPrices))
	for symbol := range m.mockPrices {
		symbols = append(symbols, symbol)
	}
	m.mu.Unlock()

	snaps := make([]models.InstrumentSnapshot, 0, len(symbols))
	for _, symbol := range symbols {
		snaps = append(snaps, m.mockOne(symbol))
	}
	return snaps
}

// mockOne generates a realistic random walk around the last mock price.
// Mock prices never feed balance arithmetic directly; settlement always reads
// the registry's decimal price.
func (m *MarketDataService) mockOne(symbol string) models.InstrumentSnapshot {
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	base, ok := m.mockPrices[symbol]
	if !ok {
		base = decimal.NewFromInt(100)
	}
	// ±2% move, rounded to cents.
	pct := decimal.NewFromFloat(rand.Float64()*4 - 2)
	price := base.Add(base.Mul(pct).Div(decimal.NewFromInt(100))).Round(2)
	m.mockPrices[symbol] = price
	m.mu.Unlock()

	return models.InstrumentSnapshot{
		Symbol:        symbol,
		CompanyName:   mockCompanyName(symbol),
		CurrentPrice:  price,
		Volume:        rand.Int63n(5000000) + 1000000,
		OpenPrice:     base,
		PreviousClose: base,
		DayHigh:       decimal.Max(base, price),
		DayLow:        decimal.Min(base, price),
		WeekHigh52:    price.Mul(decimal.RequireFromString("1.4")).Round(2),
		WeekLow52:     price.Mul(decimal.RequireFromString("0.6")).Round(2),
	}
}

func mockCompanyName(symbol string) string {
	names := map[string]string{
		"AAPL":  "Apple Inc.",
		"GOOGL": "Alphabet Inc.",
		"MSFT":  "Microsoft Corporation",
		"TSLA":  "Tesla Inc.",
		"AMZN":  "Amazon.com Inc.",
		"NVDA":  "NVIDIA Corporation",
		"META":  "Meta Platforms Inc.",
		"JPM":   "JPMorgan Chase & Co.",
	}
	if name, ok := names[symbol]; ok {
		return name
	}
	return symbol + " Corporation"
}
