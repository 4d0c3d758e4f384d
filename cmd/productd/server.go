package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"productchain/native/factory"
	"productchain/native/farming"
	"productchain/observability/metrics"
)

func newRouter(node *commerceNode) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/v1/products", node.handleProducts)
	r.Get("/v1/products/{alias}", node.handleProduct)
	r.Get("/v1/farming", node.handleFarming)

	return r
}

type productView struct {
	Alias           string `json:"alias"`
	Label           string `json:"label"`
	Implementation  string `json:"implementation"`
	CurrentPrice    string `json:"currentPrice"`
	MinPrice        string `json:"minPrice"`
	NextPrice       string `json:"nextPrice"`
	CashbackQuote   string `json:"cashbackQuote"`
	DecreasePercent string `json:"decreasePercent"`
	CashbackPercent string `json:"cashbackPercent"`
	IsActive        bool   `json:"isActive"`
	SalesCount      uint64 `json:"salesCount"`
}

func (n *commerceNode) productView(alias common.Hash) (productView, error) {
	product, err := n.factory.ProductOf(alias)
	if err != nil {
		return productView{}, err
	}
	next, err := n.factory.GetNewPrice(alias)
	if err != nil {
		return productView{}, err
	}
	quote, err := n.factory.GetCashback(alias)
	if err != nil {
		return productView{}, err
	}
	label := n.aliasLabel(alias)
	metrics.Commerce().SetProductPrice(label, priceFloat(product.CurrentPrice))
	return productView{
		Alias:           alias.Hex(),
		Label:           label,
		Implementation:  product.Implementation.Hex(),
		CurrentPrice:    product.CurrentPrice.String(),
		MinPrice:        product.MinPrice.String(),
		NextPrice:       next.String(),
		CashbackQuote:   quote.String(),
		DecreasePercent: product.DecreasePercent.String(),
		CashbackPercent: product.CashbackPercent.String(),
		IsActive:        product.IsActive,
		SalesCount:      product.SalesCount,
	}, nil
}

func (n *commerceNode) handleProducts(w http.ResponseWriter, _ *http.Request) {
	aliases, err := n.factory.Products()
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]productView, 0, len(aliases))
	for _, alias := range aliases {
		view, err := n.productView(alias)
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, views)
}

func (n *commerceNode) handleProduct(w http.ResponseWriter, r *http.Request) {
	alias := common.HexToHash(chi.URLParam(r, "alias"))
	view, err := n.productView(alias)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

type farmingView struct {
	CumulativeSum          string `json:"cumulativeSum"`
	TotalInvested          string `json:"totalInvested"`
	TotalRewardOutstanding string `json:"totalRewardOutstanding"`
}

func (n *commerceNode) handleFarming(w http.ResponseWriter, _ *http.Request) {
	sum, err := n.farm.CumulativeSum()
	if err != nil {
		writeError(w, err)
		return
	}
	outstanding, err := n.farm.TotalRewardOutstanding()
	if err != nil {
		writeError(w, err)
		return
	}
	view := farmingView{
		CumulativeSum:          sum.String(),
		TotalRewardOutstanding: outstanding.String(),
	}
	// The denominated total needs the pool's token pair; before SetTokens
	// the pool is empty by definition.
	if invested, err := n.farm.TotalInvested(); err == nil {
		view.TotalInvested = invested.String()
		metrics.Commerce().SetFarmingInvested(priceFloat(invested))
	} else if errors.Is(err, farming.ErrTokensNotSet) {
		view.TotalInvested = "0"
	} else {
		writeError(w, err)
		return
	}
	metrics.Commerce().SetRewardOutstanding(priceFloat(outstanding))
	writeJSON(w, view)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, factory.ErrProductNotFound) {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
