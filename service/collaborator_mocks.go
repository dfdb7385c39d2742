package service

import (
	"context"

	"givevault/events"
	"givevault/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockAssetToken is a mock implementation of AssetToken
type MockAssetToken struct {
	mock.Mock
}

func (m *MockAssetToken) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAssetToken) BalanceOf(ctx context.Context, holder models.Address) (decimal.Decimal, error) {
	args := m.Called(ctx, holder)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAssetToken) Transfer(ctx context.Context, from, to models.Address, amount decimal.Decimal) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

// MockYieldModule is a mock implementation of YieldModule
type MockYieldModule struct {
	mock.Mock
}

func (m *MockYieldModule) Address() models.Address {
	args := m.Called()
	return args.Get(0).(models.Address)
}

func (m *MockYieldModule) Asset() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockYieldModule) TotalManagedAssets(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockYieldModule) Invest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockYieldModule) Divest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockYieldModule) Harvest(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockDonationForwarder is a mock implementation of DonationForwarder
type MockDonationForwarder struct {
	mock.Mock
}

func (m *MockDonationForwarder) Address() models.Address {
	args := m.Called()
	return args.Get(0).(models.Address)
}

func (m *MockDonationForwarder) Forward(ctx context.Context, initiator models.Address, asset string, beneficiary models.Address, amount decimal.Decimal) error {
	args := m.Called(ctx, initiator, asset, beneficiary, amount)
	return args.Error(0)
}

// MockMetrics is a mock implementation of Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordOperation(ctx context.Context, op string, err error) {
	m.Called(ctx, op, err)
}

func (m *MockMetrics) RecordDonation(ctx context.Context, amount decimal.Decimal) {
	m.Called(ctx, amount)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
	vaultRepo      VaultRepository
	positionRepo   PositionRepository
	allowanceRepo  AllowanceRepository
	recordRepo     RecordRepository
	harvestRunRepo HarvestRunRepository
	eventBus       EventPublisher
}

// SetRepositories wires the repositories handed out by the unit of work
func (m *MockUnitOfWork) SetRepositories(vaults VaultRepository, positions PositionRepository, allowances AllowanceRepository, records RecordRepository, runs HarvestRunRepository) {
	m.vaultRepo = vaults
	m.positionRepo = positions
	m.allowanceRepo = allowances
	m.recordRepo = records
	m.harvestRunRepo = runs
}

// SetEventBus wires the publisher returned by EventBus
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) VaultRepository() VaultRepository {
	return m.vaultRepo
}

func (m *MockUnitOfWork) PositionRepository() PositionRepository {
	return m.positionRepo
}

func (m *MockUnitOfWork) AllowanceRepository() AllowanceRepository {
	return m.allowanceRepo
}

func (m *MockUnitOfWork) RecordRepository() RecordRepository {
	return m.recordRepo
}

func (m *MockUnitOfWork) HarvestRunRepository() HarvestRunRepository {
	return m.harvestRunRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	if m.eventBus != nil {
		return m.eventBus
	}
	return events.NewTransactionalBus(nil)
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
