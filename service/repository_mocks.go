package service

import (
	"context"

	"givevault/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockVaultRepository is a mock implementation of VaultRepository
type MockVaultRepository struct {
	mock.Mock
}

func (m *MockVaultRepository) Get(ctx context.Context, vaultID string) (*models.VaultState, error) {
	args := m.Called(ctx, vaultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(context.Context, string) *models.VaultState); ok {
		return fn(ctx, vaultID), args.Error(1)
	}
	return args.Get(0).(*models.VaultState), args.Error(1)
}

func (m *MockVaultRepository) Create(ctx context.Context, state *models.VaultState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockVaultRepository) Update(ctx context.Context, state *models.VaultState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// MockPositionRepository is a mock implementation of PositionRepository
type MockPositionRepository struct {
	mock.Mock
}

func (m *MockPositionRepository) GetShares(ctx context.Context, vaultID string, holder models.Address) (decimal.Decimal, error) {
	args := m.Called(ctx, vaultID, holder)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPositionRepository) AddShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error {
	args := m.Called(ctx, vaultID, holder, shares)
	return args.Error(0)
}

func (m *MockPositionRepository) DeductShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error {
	args := m.Called(ctx, vaultID, holder, shares)
	return args.Error(0)
}

func (m *MockPositionRepository) GetAll(ctx context.Context, vaultID string) ([]*models.SharePosition, error) {
	args := m.Called(ctx, vaultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SharePosition), args.Error(1)
}

func (m *MockPositionRepository) SumShares(ctx context.Context, vaultID string) (decimal.Decimal, error) {
	args := m.Called(ctx, vaultID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockAllowanceRepository is a mock implementation of AllowanceRepository
type MockAllowanceRepository struct {
	mock.Mock
}

func (m *MockAllowanceRepository) Get(ctx context.Context, vaultID string, owner, spender models.Address) (decimal.Decimal, error) {
	args := m.Called(ctx, vaultID, owner, spender)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAllowanceRepository) Set(ctx context.Context, vaultID string, owner, spender models.Address, shares decimal.Decimal) error {
	args := m.Called(ctx, vaultID, owner, spender, shares)
	return args.Error(0)
}

// MockRecordRepository is a mock implementation of RecordRepository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Append(ctx context.Context, record *models.LedgerRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.LedgerRecord, error) {
	args := m.Called(ctx, vaultID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerRecord), args.Error(1)
}

func (m *MockRecordRepository) GetByActor(ctx context.Context, vaultID string, actor models.Address, limit int) ([]*models.LedgerRecord, error) {
	args := m.Called(ctx, vaultID, actor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerRecord), args.Error(1)
}

// MockHarvestRunRepository is a mock implementation of HarvestRunRepository
type MockHarvestRunRepository struct {
	mock.Mock
}

func (m *MockHarvestRunRepository) Create(ctx context.Context, run *models.HarvestRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockHarvestRunRepository) GetLatest(ctx context.Context, vaultID string) (*models.HarvestRun, error) {
	args := m.Called(ctx, vaultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HarvestRun), args.Error(1)
}

func (m *MockHarvestRunRepository) GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.HarvestRun, error) {
	args := m.Called(ctx, vaultID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.HarvestRun), args.Error(1)
}
