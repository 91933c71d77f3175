package quotes

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ffe-procurement/internal/acceptance"
	internalquotes "github.com/angelmondragon/ffe-procurement/internal/quotes"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

type stubRegistry struct {
	ingest        func(ctx context.Context, input internalquotes.IngestInput) (*internalquotes.IngestResult, error)
	summaries     []internalquotes.QuoteSummary
	err           error
	components    int
	componentItem uuid.UUID
	history       []models.QuoteLineItem
}

func (s *stubRegistry) Ingest(ctx context.Context, input internalquotes.IngestInput) (*internalquotes.IngestResult, error) {
	return s.ingest(ctx, input)
}

func (s *stubRegistry) seq() iter.Seq2[internalquotes.QuoteSummary, error] {
	return func(yield func(internalquotes.QuoteSummary, error) bool) {
		if s.err != nil {
			yield(internalquotes.QuoteSummary{}, s.err)
			return
		}
		for _, summary := range s.summaries {
			if !yield(summary, nil) {
				return
			}
		}
	}
}

func (s *stubRegistry) Comparison(context.Context, uuid.UUID) iter.Seq2[internalquotes.QuoteSummary, error] {
	return s.seq()
}

func (s *stubRegistry) ComponentComparison(_ context.Context, itemID, _ uuid.UUID) iter.Seq2[internalquotes.QuoteSummary, error] {
	s.components++
	s.componentItem = itemID
	return s.seq()
}

func (s *stubRegistry) History(context.Context, uuid.UUID) ([]models.QuoteLineItem, error) {
	return s.history, nil
}

type stubAcceptor struct {
	accept func(ctx context.Context, input acceptance.AcceptInput) (*acceptance.AcceptResult, error)
}

func (s stubAcceptor) Accept(ctx context.Context, input acceptance.AcceptInput) (*acceptance.AcceptResult, error) {
	return s.accept(ctx, input)
}

func serve(method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestIngestParsesDecimalsAndReportsReview(t *testing.T) {
	itemID, supplierID := uuid.New(), uuid.New()
	reg := &stubRegistry{ingest: func(_ context.Context, input internalquotes.IngestInput) (*internalquotes.IngestResult, error) {
		assert.Equal(t, itemID, input.ItemID)
		assert.Equal(t, supplierID, input.SupplierID)
		assert.True(t, input.UnitPrice.Equal(decimal.RequireFromString("150.5")))
		assert.Nil(t, input.TotalPrice)
		assert.Nil(t, input.ComponentID)
		return &internalquotes.IngestResult{
			Quote:          models.QuoteLineItem{ID: uuid.New(), ItemID: itemID, SupplierID: supplierID, UnitPrice: input.UnitPrice, Currency: enums.CurrencyUSD, Version: 2, IsLatestVersion: true},
			Superseded:     &models.QuoteLineItem{ID: uuid.New(), Version: 1, IsAccepted: true, Currency: enums.CurrencyUSD},
			ReviewRequired: true,
		}, nil
	}}

	body := `{"supplier_id":"` + supplierID.String() + `","unit_price":"150.5","currency":"USD","lead_time_days":21}`
	resp := serve(http.MethodPost, "/items/{itemId}/quotes", "/items/"+itemID.String()+"/quotes", body, Ingest(reg, logger.Nop()))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var view struct {
		Quote struct {
			UnitPrice string `json:"unit_price"`
			Version   int    `json:"version"`
		} `json:"quote"`
		Superseded     *struct{} `json:"superseded"`
		ReviewRequired bool      `json:"review_required"`
	}
	decodeData(t, resp, &view)
	assert.Equal(t, "150.50", view.Quote.UnitPrice)
	assert.Equal(t, 2, view.Quote.Version)
	assert.NotNil(t, view.Superseded)
	assert.True(t, view.ReviewRequired)
}

func TestIngestRejectsNonDecimalPrice(t *testing.T) {
	reg := &stubRegistry{}
	body := `{"supplier_id":"` + uuid.NewString() + `","unit_price":"cheap","currency":"USD"}`
	resp := serve(http.MethodPost, "/items/{itemId}/quotes", "/items/"+uuid.NewString()+"/quotes", body, Ingest(reg, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "unit_price")
}

func TestComparisonRendersDeltas(t *testing.T) {
	itemID := uuid.New()
	accepted := decimal.RequireFromString("-10")
	reg := &stubRegistry{summaries: []internalquotes.QuoteSummary{
		{Quote: models.QuoteLineItem{ID: uuid.New(), ItemID: itemID, UnitPrice: decimal.RequireFromString("140"), Currency: enums.CurrencyUSD}, IsMinimum: true, DeltaToAccepted: &accepted},
		{Quote: models.QuoteLineItem{ID: uuid.New(), ItemID: itemID, UnitPrice: decimal.RequireFromString("150"), Currency: enums.CurrencyUSD}, DeltaToMinimum: decimal.RequireFromString("10"), IsAccepted: true},
	}}

	resp := serve(http.MethodGet, "/items/{itemId}/quotes/comparison", "/items/"+itemID.String()+"/quotes/comparison", "", Comparison(reg, logger.Nop()))
	require.Equal(t, http.StatusOK, resp.Code)
	var views []struct {
		DeltaToMinimum  string  `json:"delta_to_minimum"`
		DeltaToAccepted *string `json:"delta_to_accepted"`
		IsMinimum       bool    `json:"is_minimum"`
	}
	decodeData(t, resp, &views)
	require.Len(t, views, 2)
	assert.True(t, views[0].IsMinimum)
	require.NotNil(t, views[0].DeltaToAccepted)
	assert.Equal(t, "-10.00", *views[0].DeltaToAccepted)
	assert.Equal(t, "10.00", views[1].DeltaToMinimum)
	assert.Equal(t, 0, reg.components)
}

func TestComparisonScopesToComponent(t *testing.T) {
	itemID := uuid.New()
	reg := &stubRegistry{summaries: []internalquotes.QuoteSummary{
		{Quote: models.QuoteLineItem{ID: uuid.New(), ItemID: itemID, Currency: enums.CurrencyUSD}},
	}}
	target := "/items/" + itemID.String() + "/quotes/comparison?component_id=" + uuid.NewString()
	resp := serve(http.MethodGet, "/items/{itemId}/quotes/comparison", target, "", Comparison(reg, logger.Nop()))
	require.Equal(t, http.StatusOK, resp.Code)
	var views []map[string]any
	decodeData(t, resp, &views)
	assert.Len(t, views, 1)
	assert.Equal(t, 1, reg.components)
	assert.Equal(t, itemID, reg.componentItem)
}

func TestComparisonRejectsForeignComponent(t *testing.T) {
	reg := &stubRegistry{err: pkgerrors.New(pkgerrors.CodeValidation, "component does not belong to item")}
	target := "/items/" + uuid.NewString() + "/quotes/comparison?component_id=" + uuid.NewString()
	resp := serve(http.MethodGet, "/items/{itemId}/quotes/comparison", target, "", Comparison(reg, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "VALIDATION_ERROR")
}

func TestComparisonSurfacesIteratorError(t *testing.T) {
	reg := &stubRegistry{err: pkgerrors.New(pkgerrors.CodeNotFound, "item not found")}
	resp := serve(http.MethodGet, "/items/{itemId}/quotes/comparison", "/items/"+uuid.NewString()+"/quotes/comparison", "", Comparison(reg, logger.Nop()))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAcceptWithAndWithoutComponent(t *testing.T) {
	itemID, quoteID, componentID := uuid.New(), uuid.New(), uuid.New()
	var got acceptance.AcceptInput
	svc := stubAcceptor{accept: func(_ context.Context, input acceptance.AcceptInput) (*acceptance.AcceptResult, error) {
		got = input
		return &acceptance.AcceptResult{
			Item:    models.Item{ID: itemID, Currency: enums.CurrencyUSD},
			Quote:   models.QuoteLineItem{ID: quoteID, IsAccepted: true, Currency: enums.CurrencyUSD},
			Changed: true,
		}, nil
	}}
	pattern := "/items/{itemId}/quotes/{quoteId}/accept"
	target := "/items/" + itemID.String() + "/quotes/" + quoteID.String() + "/accept"

	resp := serve(http.MethodPost, pattern, target, "", Accept(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, quoteID, got.QuoteLineItemID)
	assert.Nil(t, got.ComponentID)

	resp = serve(http.MethodPost, pattern, target, `{"component_id":"`+componentID.String()+`"}`, Accept(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, got.ComponentID)
	assert.Equal(t, componentID, *got.ComponentID)
}

func TestAcceptMapsSupersededQuote(t *testing.T) {
	svc := stubAcceptor{accept: func(context.Context, acceptance.AcceptInput) (*acceptance.AcceptResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote has been superseded")
	}}
	target := "/items/" + uuid.NewString() + "/quotes/" + uuid.NewString() + "/accept"
	resp := serve(http.MethodPost, "/items/{itemId}/quotes/{quoteId}/accept", target, "", Accept(svc, logger.Nop()))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "superseded")
}

func TestHistoryListsChain(t *testing.T) {
	reg := &stubRegistry{history: []models.QuoteLineItem{{ID: uuid.New(), Version: 2}, {ID: uuid.New(), Version: 1}}}
	resp := serve(http.MethodGet, "/quotes/{quoteId}/history", "/quotes/"+uuid.NewString()+"/history", "", History(reg, logger.Nop()))
	require.Equal(t, http.StatusOK, resp.Code)
	var views []struct {
		Version int `json:"version"`
	}
	decodeData(t, resp, &views)
	require.Len(t, views, 2)
	assert.Equal(t, 2, views[0].Version)
}
