package rln

// The request and response bodies of the node's JSON API. Field names follow
// the node.

type decodeLNInvoiceRequest struct {
	Invoice string `json:"invoice"`
}

type decodeLNInvoiceResponse struct {
	AmtMsat       *uint64 `json:"amt_msat"`
	ExpirySec     uint64  `json:"expiry_sec"`
	Timestamp     int64   `json:"timestamp"`
	AssetID       *string `json:"asset_id"`
	AssetAmount   *uint64 `json:"asset_amount"`
	PaymentHash   string  `json:"payment_hash"`
	PaymentSecret string  `json:"payment_secret"`
	PayeePubkey   *string `json:"payee_pubkey"`
	Network       string  `json:"network"`
}

type decodeRGBInvoiceRequest struct {
	Invoice string `json:"invoice"`
}

// assignment is the node's tagged amount of an RGB transfer.
type assignment struct {
	Type  string  `json:"type"`
	Value *uint64 `json:"value,omitempty"`
}

const assignmentFungible = "Fungible"

type decodeRGBInvoiceResponse struct {
	RecipientID         string     `json:"recipient_id"`
	RecipientType       string     `json:"recipient_type"`
	AssetSchema         *string    `json:"asset_schema"`
	AssetID             *string    `json:"asset_id"`
	Assignment          assignment `json:"assignment"`
	Network             string     `json:"network"`
	ExpirationTimestamp *int64     `json:"expiration_timestamp"`
	TransportEndpoints  []string   `json:"transport_endpoints"`
}

type btcBalanceRequest struct {
	SkipSync bool `json:"skip_sync"`
}

type balance struct {
	Settled   int64 `json:"settled"`
	Future    int64 `json:"future"`
	Spendable int64 `json:"spendable"`
}

type btcBalanceResponse struct {
	Vanilla balance `json:"vanilla"`
	Colored balance `json:"colored"`
}

type assetBalanceRequest struct {
	AssetID string `json:"asset_id"`
}

type assetBalanceResponse struct {
	Settled          int64 `json:"settled"`
	Future           int64 `json:"future"`
	Spendable        int64 `json:"spendable"`
	OffchainOutbound int64 `json:"offchain_outbound"`
	OffchainInbound  int64 `json:"offchain_inbound"`
}

type channel struct {
	ChannelID                 string  `json:"channel_id"`
	PeerPubkey                string  `json:"peer_pubkey"`
	Ready                     bool    `json:"ready"`
	IsUsable                  bool    `json:"is_usable"`
	OutboundBalanceMsat       uint64  `json:"outbound_balance_msat"`
	NextOutboundHTLCLimitMsat uint64  `json:"next_outbound_htlc_limit_msat"`
	AssetID                   *string `json:"asset_id"`
	AssetLocalAmount          *uint64 `json:"asset_local_amount"`
}

type listChannelsResponse struct {
	Channels []channel `json:"channels"`
}

type estimateFeeRequest struct {
	Blocks uint16 `json:"blocks"`
}

type estimateFeeResponse struct {
	FeeRate float64 `json:"fee_rate"`
}

type sendPaymentRequest struct {
	Invoice     string  `json:"invoice"`
	AmtMsat     *uint64 `json:"amt_msat,omitempty"`
	AssetID     *string `json:"asset_id,omitempty"`
	AssetAmount *uint64 `json:"asset_amount,omitempty"`
}

type sendPaymentResponse struct {
	PaymentID     string `json:"payment_id"`
	PaymentHash   string `json:"payment_hash"`
	PaymentSecret string `json:"payment_secret"`
	Status        string `json:"status"`
}

type sendBTCRequest struct {
	Amount   uint64 `json:"amount"`
	Address  string `json:"address"`
	FeeRate  uint64 `json:"fee_rate"`
	SkipSync bool   `json:"skip_sync"`
}

type sendResponse struct {
	TxID string `json:"txid"`
}

type witnessData struct {
	AmountSat uint64  `json:"amount_sat"`
	Blinding  *uint64 `json:"blinding"`
}

type sendAssetRequest struct {
	AssetID            string       `json:"asset_id"`
	Assignment         assignment   `json:"assignment"`
	RecipientID        string       `json:"recipient_id"`
	Donation           bool         `json:"donation"`
	FeeRate            uint64       `json:"fee_rate"`
	MinConfirmations   uint8        `json:"min_confirmations"`
	TransportEndpoints []string     `json:"transport_endpoints"`
	SkipSync           bool         `json:"skip_sync"`
	WitnessData        *witnessData `json:"witness_data,omitempty"`
}

type getPaymentRequest struct {
	PaymentHash string `json:"payment_hash"`
}

// Payment is a Lightning payment as listed by the node.
type Payment struct {
	AmtMsat     *uint64 `json:"amt_msat"`
	AssetAmount *uint64 `json:"asset_amount"`
	AssetID     *string `json:"asset_id"`
	PaymentHash string  `json:"payment_hash"`
	Inbound     bool    `json:"inbound"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
	PayeePubkey string  `json:"payee_pubkey"`
}

type getPaymentResponse struct {
	Payment Payment `json:"payment"`
}

type listPaymentsResponse struct {
	Payments []Payment `json:"payments"`
}

type listAssetsRequest struct {
	FilterAssetSchemas []string `json:"filter_asset_schemas"`
}

type assetRecord struct {
	AssetID   string `json:"asset_id"`
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	Precision uint8  `json:"precision"`
}

type listAssetsResponse struct {
	NIA []assetRecord `json:"nia"`
	CFA []assetRecord `json:"cfa"`
}

// errorResponse is the body of every failed call.
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Name  string `json:"name"`
}
