package nodemock

import (
	"context"

	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
)

// MockNode is a mock implementation of node.Node.
type MockNode struct {
	mock.Mock
}

// Compile-time constraint to ensure MockNode implements node.Node.
var _ node.Node = (*MockNode)(nil)

func (m *MockNode) DecodeLightningInvoice(ctx context.Context,
	invoice string) (*node.LightningInvoiceInfo, error) {

	args := m.Called(ctx, invoice)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.LightningInvoiceInfo), args.Error(1)
}

func (m *MockNode) DecodeAssetInvoice(ctx context.Context,
	invoice string) (*node.AssetInvoiceInfo, error) {

	args := m.Called(ctx, invoice)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.AssetInvoiceInfo), args.Error(1)
}

func (m *MockNode) Balances(ctx context.Context,
	assetID string) (*node.Balances, error) {

	args := m.Called(ctx, assetID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.Balances), args.Error(1)
}

func (m *MockNode) EstimateFees(ctx context.Context) (*node.FeeEstimates,
	error) {

	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.FeeEstimates), args.Error(1)
}

func (m *MockNode) Submit(ctx context.Context,
	req *node.SubmitRequest) (*node.SubmitResult, error) {

	args := m.Called(ctx, req)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.SubmitResult), args.Error(1)
}

func (m *MockNode) PollStatus(ctx context.Context,
	attemptID string) (node.PaymentStatus, error) {

	args := m.Called(ctx, attemptID)

	return args.Get(0).(node.PaymentStatus), args.Error(1)
}

func (m *MockNode) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]asset.Asset), args.Error(1)
}

// MockL2Wallet is a mock implementation of node.L2Wallet.
type MockL2Wallet struct {
	mock.Mock
}

// Compile-time constraint to ensure MockL2Wallet implements node.L2Wallet.
var _ node.L2Wallet = (*MockL2Wallet)(nil)

func (m *MockL2Wallet) Balance(ctx context.Context) (int64, error) {
	args := m.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockL2Wallet) PrepareSend(ctx context.Context, destination string,
	amount fn.Option[int64]) (*node.PreparedSend, error) {

	args := m.Called(ctx, destination, amount)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.PreparedSend), args.Error(1)
}

func (m *MockL2Wallet) Send(ctx context.Context, prepared *node.PreparedSend,
	opts node.SendOptions) (*node.SendOutcome, error) {

	args := m.Called(ctx, prepared, opts)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*node.SendOutcome), args.Error(1)
}
