package testutil

import (
	"context"
	"time"

	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/domain/product"
	"github.com/paylinks/pricechange/internal/domain/subscription"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/metrics"
	"github.com/paylinks/pricechange/internal/postgres"
	"github.com/paylinks/pricechange/internal/sentry"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/paylinks/pricechange/internal/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository fakes for testing
type Stores struct {
	SubscriptionRepo       *InMemorySubscriptionStore
	ProductRepo            *InMemoryProductStore
	PriceChangeRepo        *InMemoryPriceChangeStore
	ProductPriceChangeRepo *InMemoryProductPriceChangeStore
	NotificationRepo       *InMemoryNotificationStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	stores  Stores
	pubsub  *InMemoryPubSub
	db      postgres.IClient
	logger  *logger.Logger
	config  *config.Configuration
	clock   *FakeClock
	metrics *metrics.Metrics
	sentry  *sentry.Service
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo
	cfg.PriceChange.SweepConcurrency = 4
	s.config = cfg

	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.sentry = sentry.NewSentryService(cfg, s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.clock = NewFakeClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	s.metrics = metrics.NewMetrics(prometheus.NewRegistry())
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		SubscriptionRepo:       NewInMemorySubscriptionStore(),
		ProductRepo:            NewInMemoryProductStore(),
		PriceChangeRepo:        NewInMemoryPriceChangeStore(),
		ProductPriceChangeRepo: NewInMemoryProductPriceChangeStore(),
		NotificationRepo:       NewInMemoryNotificationStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.pubsub = NewInMemoryPubSub()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.SubscriptionRepo.Clear()
	s.stores.ProductRepo.Clear()
	s.stores.PriceChangeRepo.Clear()
	s.stores.ProductPriceChangeRepo.Clear()
	s.stores.NotificationRepo.Clear()
	s.pubsub.ClearMessages()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the in-memory transport notifications are published to
func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetClock returns the clock every service under test reads
func (s *BaseServiceTestSuite) GetClock() *FakeClock {
	return s.clock
}

// GetMetrics returns collectors registered on a per-test registry
func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

// GetSentry returns a disabled sentry service
func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.clock.Now()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}

// SubscriptionOption customizes CreateSubscription
type SubscriptionOption func(sub *subscription.Subscription)

func WithProduct(productID string) SubscriptionOption {
	return func(sub *subscription.Subscription) { sub.ProductID = lo.ToPtr(productID) }
}

func WithSubscriptionType(t types.SubscriptionType) SubscriptionOption {
	return func(sub *subscription.Subscription) { sub.SubscriptionType = t }
}

func WithSubscriptionStatus(status types.SubscriptionStatus) SubscriptionOption {
	return func(sub *subscription.Subscription) { sub.SubscriptionStatus = status }
}

func WithAmount(amount int64) SubscriptionOption {
	return func(sub *subscription.Subscription) { sub.Amount = amount }
}

func WithContact(phone, email *string) SubscriptionOption {
	return func(sub *subscription.Subscription) {
		sub.CustomerPhone = phone
		sub.CustomerEmail = email
	}
}

// CreateSubscription stores an active fixed subscription of 100000 minor units unless options say otherwise
func (s *BaseServiceTestSuite) CreateSubscription(opts ...SubscriptionOption) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		CustomerID:         types.GenerateUUID(),
		CustomerName:       "Ada Lovelace",
		CustomerPhone:      lo.ToPtr("+254700000001"),
		Amount:             100000,
		Currency:           "kes",
		SubscriptionType:   types.SubscriptionTypeFixed,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BaseModel:          types.GetDefaultBaseModel(s.ctx, s.clock.Now()),
	}
	for _, opt := range opts {
		opt(sub)
	}
	s.Require().NoError(s.stores.SubscriptionRepo.Create(s.ctx, sub))
	return sub
}

// CreateProduct stores an active product template
func (s *BaseServiceTestSuite) CreateProduct(baseAmount int64) *product.Product {
	p := &product.Product{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		Name:       "Gym membership",
		BaseAmount: baseAmount,
		Currency:   "kes",
		Status:     product.StatusActive,
		BaseModel:  types.GetDefaultBaseModel(s.ctx, s.clock.Now()),
	}
	s.Require().NoError(s.stores.ProductRepo.Create(s.ctx, p))
	return p
}

// MustGetSubscription reads the stored subscription
func (s *BaseServiceTestSuite) MustGetSubscription(id string) *subscription.Subscription {
	sub, err := s.stores.SubscriptionRepo.Get(s.ctx, id)
	s.Require().NoError(err)
	return sub
}
