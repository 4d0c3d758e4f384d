package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"productchain/config"
	"productchain/core/events"
	"productchain/core/state"
	"productchain/native/cashback"
	"productchain/native/factory"
	"productchain/native/farming"
	"productchain/native/oracle"
	"productchain/native/payment"
	"productchain/native/token"
	"productchain/observability/logging"
	"productchain/observability/metrics"
	"productchain/storage"
)

func moduleAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("module/" + name))[12:])
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	ephemeral := flag.Bool("ephemeral", false, "Keep all state in memory (testing only)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PRODUCTCHAIN_ENV"))
	logger := logging.Setup("productd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var db storage.Database
	if *ephemeral || cfg.Ephemeral {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = ldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	registry := token.NewRegistry(manager)

	node, err := buildNode(cfg, manager, registry)
	if err != nil {
		logger.Error("Failed to assemble commerce modules", slog.Any("error", err))
		os.Exit(1)
	}
	if err := manager.Commit(); err != nil {
		logger.Error("Failed to persist genesis configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("productd started",
		slog.String("listen", cfg.ListenAddress),
		slog.Int("products", len(cfg.Products)),
		slog.Int("paymentTokens", len(cfg.PaymentTokens)))

	if err := http.ListenAndServe(cfg.ListenAddress, newRouter(node)); err != nil {
		logger.Error("HTTP server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

type commerceNode struct {
	manager  *state.Manager
	registry *token.Registry
	points   *cashback.Ledger
	farm     *farming.Engine
	router   *payment.Engine
	factory  *factory.Engine
	aliases  map[common.Hash]string
}

func buildNode(cfg *config.Config, manager *state.Manager, registry *token.Registry) (*commerceNode, error) {
	factoryAddr := moduleAddress("factory")
	routerAddr := moduleAddress("payment")
	farmingAddr := moduleAddress("farming")

	if err := manager.GrantRole(state.RoleFactoryContract, factoryAddr); err != nil {
		return nil, err
	}
	if err := manager.GrantRole(state.RolePaymentContract, routerAddr); err != nil {
		return nil, err
	}
	operator := common.HexToAddress(cfg.Operator)
	if operator != (common.Address{}) {
		if err := manager.GrantRole(state.RoleOperator, operator); err != nil {
			return nil, err
		}
	}

	points := cashback.NewLedger()
	points.SetState(manager)
	points.SetRoles(manager)

	farm := farming.NewEngine(farmingAddr)
	farm.SetState(manager)
	farm.SetLedger(registry)
	farm.SetRoles(manager)

	router := payment.NewEngine(routerAddr)
	router.SetState(manager)
	router.SetRoles(manager)
	router.SetLedger(registry)
	router.SetNativeLedger(registry)
	router.SetCashback(points)
	router.SetOracle(oracle.NewStaticOracle())

	engine := factory.NewEngine(factoryAddr)
	engine.SetState(manager)
	engine.SetRoles(manager)
	engine.SetPayment(router)
	engine.SetDeployer(registry)

	node := &commerceNode{
		manager:  manager,
		registry: registry,
		points:   points,
		farm:     farm,
		router:   router,
		factory:  engine,
		aliases:  make(map[common.Hash]string),
	}

	emitter := &metricsEmitter{node: node}
	points.SetEmitter(emitter)
	router.SetEmitter(emitter)
	engine.SetEmitter(emitter)

	if operator == (common.Address{}) {
		return node, nil
	}

	if err := router.Setup(operator, payment.Config{
		SettlementAsset: common.HexToAddress(cfg.SettlementAsset),
		Treasury:        common.HexToAddress(cfg.Treasury),
		RewardSink:      farmingAddr,
		WrappedNative:   common.HexToAddress(cfg.WrappedNative),
	}); err != nil {
		return nil, fmt.Errorf("setup payment router: %w", err)
	}

	for _, tok := range cfg.PaymentTokens {
		err := router.SetPaymentTokens(operator,
			[]common.Address{common.HexToAddress(tok.Asset)},
			[]payment.TokenConfig{{
				Venue:      common.HexToAddress(tok.Venue),
				PoolFee:    tok.PoolFee,
				SecondsAgo: tok.SecondsAgo,
			}},
			[]bool{true})
		if err != nil {
			return nil, fmt.Errorf("enable payment token %s: %w", tok.Asset, err)
		}
	}

	for _, seed := range cfg.Products {
		alias := seed.AliasHash()
		currentPrice, minPrice, decreasePercent, cashbackPercent := seed.Amounts()
		err := engine.SetupProduct(operator, alias,
			common.HexToAddress(seed.Implementation),
			currentPrice, minPrice, decreasePercent, cashbackPercent, seed.Active)
		if err != nil {
			return nil, fmt.Errorf("seed product %s: %w", seed.Alias, err)
		}
		node.aliases[alias] = seed.Alias
	}
	return node, nil
}

// metricsEmitter bridges engine events into the Prometheus registry.
type metricsEmitter struct {
	node *commerceNode
}

func (m *metricsEmitter) Emit(evt events.Event) {
	if m == nil || m.node == nil {
		return
	}
	switch e := evt.(type) {
	case events.PaymentSettled:
		metrics.Commerce().ObserveSale(m.node.aliasLabel(e.Product), priceFloat(e.Collected), e.PayAsset.Hex())
	case events.ProductDeployed:
		metrics.Commerce().SetProductPrice(m.node.aliasLabel(e.Alias), priceFloat(e.Price))
	case events.CashbackUsed:
		metrics.Commerce().ObserveRedemption()
		m.refreshPool(e.Product)
	case events.CashbackMinted:
		m.refreshPool(e.Product)
	}
}

func (m *metricsEmitter) refreshPool(product common.Hash) {
	total, err := m.node.points.PoolTotal(product)
	if err != nil {
		return
	}
	metrics.Commerce().SetCashbackPool(m.node.aliasLabel(product), priceFloat(total))
}

func (n *commerceNode) aliasLabel(alias common.Hash) string {
	if name, ok := n.aliases[alias]; ok {
		return name
	}
	return alias.Hex()
}

func priceFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	out, _ := new(big.Float).SetInt(amount).Float64()
	return out
}
