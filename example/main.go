// Demo of the settlement flow against in-process collaborators: mint an
// asset, sign an order and a matching offer off-band, then fulfill the pair
// and inspect the resulting balances and fee pools.
package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	imarket "github.com/kaifufi/imarket-go"
	"github.com/kaifufi/imarket-go/chain"
	"github.com/kaifufi/imarket-go/registry"
)

const chainID = 31337

func main() {
	ctx := context.Background()

	marketAddr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	adminKey, _ := crypto.GenerateKey()
	sellerKey, _ := crypto.GenerateKey()
	buyerKey, _ := crypto.GenerateKey()

	admin := crypto.PubkeyToAddress(adminKey.PublicKey)
	sellerAddr := crypto.PubkeyToAddress(sellerKey.PublicKey)
	buyerAddr := crypto.PubkeyToAddress(buyerKey.PublicKey)
	creator := common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

	reg := registry.NewMemory(nil, marketAddr)

	market, err := imarket.New(imarket.Options{
		Admin:      admin,
		ChainID:    big.NewInt(chainID),
		Contract:   marketAddr,
		FeeRateBps: 250,
		Registry:   reg,
		Tokens:     imarket.NewMemoryTokenBackend(marketAddr),
	})
	if err != nil {
		panic(err)
	}

	adminCall := imarket.Call{Caller: admin}
	if _, err := market.SetPartnerRate(adminCall, creator, 4000); err != nil {
		panic(err)
	}

	tokenID := reg.RegisterWithCreator(sellerAddr, creator)
	fmt.Printf("asset %s owned by %s, created by %s\n", tokenID, sellerAddr.Hex(), creator.Hex())

	expiry := uint64(time.Now().Add(time.Hour).Unix())

	seller := chain.NewOrderBuilder(marketAddr, chainID, sellerKey)
	order, err := seller.BuildOrder(&chain.Order{
		TokenID:    tokenID,
		MinPrice:   big.NewInt(900),
		ExpireTime: expiry,
	})
	if err != nil {
		panic(err)
	}

	buyer := chain.NewOrderBuilder(marketAddr, chainID, buyerKey)
	offer, err := buyer.BuildOffer(&chain.Offer{
		TokenID:    tokenID,
		Price:      big.NewInt(1000),
		ExpireTime: expiry,
	})
	if err != nil {
		panic(err)
	}

	// Buyer funds the purchase from a prior deposit.
	if _, err := market.Deposit(imarket.Call{Caller: buyerAddr, Value: big.NewInt(1000)}); err != nil {
		panic(err)
	}

	ev, err := market.FulfillOrder(ctx, imarket.Call{Caller: buyerAddr}, order, offer, nil)
	if err != nil {
		panic(err)
	}
	fmt.Printf("settled: %+v\n", ev.Data)

	owner, _ := reg.OwnerOf(ctx, tokenID)
	fmt.Printf("new owner:       %s\n", owner.Hex())
	fmt.Printf("seller balance:  %s\n", market.BalanceOf(sellerAddr))
	fmt.Printf("platform fees:   %s\n", market.PlatformFeeBalance(imarket.NativeCurrency))
	fmt.Printf("partner fees:    %s\n", market.PartnerFeeBalance(creator, imarket.NativeCurrency))
}
