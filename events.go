package imarket

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType identifies a state-change record.
type EventType string

const (
	EventSettlementCompleted EventType = "settlement_completed"
	EventDeposit             EventType = "deposit"
	EventWithdrawal          EventType = "withdrawal"
	EventFeeRateChanged      EventType = "fee_rate_changed"
	EventMintFeesChanged     EventType = "mint_fees_changed"
	EventPartnerRateChanged  EventType = "partner_rate_changed"
	EventFeesWithdrawn       EventType = "fees_withdrawn"
	EventPartnerWithdrawn    EventType = "partner_fees_withdrawn"
	EventAdminChanged        EventType = "admin_changed"
	EventPaused              EventType = "paused"
	EventUnpaused            EventType = "unpaused"
	EventAssetWhitelisted    EventType = "asset_contract_added"
	EventAssetDelisted       EventType = "asset_contract_removed"
	EventAssetMinted         EventType = "asset_minted"
)

// Event is a structured record of a completed state change, intended for
// external indexing rather than internal logic.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// EventSink receives every emitted event. Implementations must not call back
// into the engine.
type EventSink interface {
	Record(ev Event)
}

// SettlementData is the payload of a settlement-completed event.
type SettlementData struct {
	Seller        common.Address `json:"seller"`
	Buyer         common.Address `json:"buyer"`
	TokenID       string         `json:"token_id"`
	Price         string         `json:"price"`
	Currency      common.Address `json:"currency"`
	AssetContract common.Address `json:"asset_contract"`
	PlatformFee   string         `json:"platform_fee"`
	PartnerFee    string         `json:"partner_fee"`
	Partner       common.Address `json:"partner,omitempty"`
}

// BalanceData is the payload of deposit and withdrawal events.
type BalanceData struct {
	Account common.Address `json:"account"`
	Amount  string         `json:"amount"`
	By      common.Address `json:"by,omitempty"`
}

// FeeRateData is the payload of fee-rate change events.
type FeeRateData struct {
	OldRate uint64 `json:"old_rate"`
	NewRate uint64 `json:"new_rate"`
}

// MintFeesData is the payload of mint-fee change events.
type MintFeesData struct {
	MintFee         string `json:"mint_fee"`
	DiscountMintFee string `json:"discount_mint_fee"`
}

// PartnerRateData is the payload of partner-rate change events.
type PartnerRateData struct {
	Partner common.Address `json:"partner"`
	Rate    uint64         `json:"rate"`
}

// FeeWithdrawalData is the payload of fee-pool withdrawal events.
type FeeWithdrawalData struct {
	Recipient common.Address `json:"recipient"`
	Currency  common.Address `json:"currency"`
	Amount    string         `json:"amount"`
}

// AdminData is the payload of admin transfer events.
type AdminData struct {
	OldAdmin common.Address `json:"old_admin"`
	NewAdmin common.Address `json:"new_admin"`
}

// WhitelistData is the payload of whitelist membership events.
type WhitelistData struct {
	AssetContract common.Address `json:"asset_contract"`
}

// MintData is the payload of mint events.
type MintData struct {
	Minter  common.Address `json:"minter"`
	Owner   common.Address `json:"owner"`
	Creator common.Address `json:"creator,omitempty"`
	TokenID string         `json:"token_id"`
	Fee     string         `json:"fee"`
}

// emit builds the event envelope and hands it to the sink, if any.
func (m *Market) emit(typ EventType, data any) Event {
	ev := Event{
		ID:   uuid.New().String(),
		Type: typ,
		At:   time.Now().UTC(),
		Data: data,
	}
	if m.sink != nil {
		m.sink.Record(ev)
	}
	return ev
}
