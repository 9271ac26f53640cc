package main

import (
	"context"
	"flag"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	imarket "github.com/kaifufi/imarket-go"
	"github.com/kaifufi/imarket-go/chain"
	"github.com/kaifufi/imarket-go/internal/config"
	"github.com/kaifufi/imarket-go/internal/handler"
	"github.com/kaifufi/imarket-go/internal/journal"
	"github.com/kaifufi/imarket-go/internal/logger"
	"github.com/kaifufi/imarket-go/registry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envOnly := flag.Bool("env-only", false, "configure from environment only")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envOnly)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer log.Sync()

	store, err := journal.New(cfg.Journal.Path, log)
	if err != nil {
		log.Fatal("failed to open journal", zap.Error(err))
	}
	defer store.Close()

	market, err := buildMarket(cfg, store, log)
	if err != nil {
		log.Fatal("failed to build market", zap.Error(err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handler.New(market, store, log).Register(router)

	log.Info("imarketd listening", zap.String("addr", cfg.Server.HTTPAddr))
	if err := router.Run(cfg.Server.HTTPAddr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func buildMarket(cfg config.Config, store *journal.Store, log *zap.Logger) (*imarket.Market, error) {
	contract := common.HexToAddress(cfg.Market.ContractAddr)
	admin := common.HexToAddress(cfg.Market.AdminAddr)

	mintFee, err := imarket.ParseAmount(cfg.Market.MintFee, 0)
	if err != nil {
		return nil, err
	}
	discountMintFee, err := imarket.ParseAmount(cfg.Market.DiscountMintFee, 0)
	if err != nil {
		return nil, err
	}

	opts := imarket.Options{
		Admin:           admin,
		ChainID:         big.NewInt(cfg.Market.ChainID),
		Contract:        contract,
		FeeRateBps:      cfg.Market.FeeRateBps,
		MintFee:         mintFee,
		DiscountMintFee: discountMintFee,
		Sink:            store,
		Logger:          log,
	}

	if cfg.RPC.URL != "" {
		caller, err := chain.DialCaller(context.Background(), cfg.RPC.URL, cfg.RPC.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		registryAddr := common.HexToAddress(cfg.RPC.RegistryAddr)
		opts.Registry = chain.NewRegistryCaller(caller, registryAddr)
		opts.RegistryAddr = registryAddr
		opts.Tokens = chain.NewTokenCaller(caller)
		log.Info("bound on-chain collaborators",
			zap.String("rpc", cfg.RPC.URL),
			zap.String("registry", registryAddr.Hex()),
		)
	} else {
		opts.Registry = registry.NewMemory(nil, contract)
		opts.RegistryAddr = contract
		opts.Tokens = imarket.NewMemoryTokenBackend(contract)
		log.Info("running on in-process collaborators")
	}

	return imarket.New(opts)
}
