package reconciliation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	intentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/intent"
	notificationDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/notification"
	"github.com/frahmantamala/payment-reconciliation/internal/intent"
	intentPostgres "github.com/frahmantamala/payment-reconciliation/internal/intent/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/ledger"
	ledgerPostgres "github.com/frahmantamala/payment-reconciliation/internal/ledger/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
	reconciliationPostgres "github.com/frahmantamala/payment-reconciliation/internal/reconciliation/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
)

// SQLite-compatible models for testing
type sqlitePaymentIntent struct {
	ID                     int64      `gorm:"primaryKey"`
	IntentID               string     `gorm:"column:intent_id;not null;uniqueIndex"`
	UserRef                string     `gorm:"column:user_ref;not null;index"`
	AmountCents            int64      `gorm:"column:amount_cents;not null"`
	Currency               string     `gorm:"column:currency;not null"`
	Status                 string     `gorm:"column:status;default:pending"`
	MatchedNotificationRef *string    `gorm:"column:matched_notification_ref"`
	Note                   *string    `gorm:"column:note"`
	CompletedAt            *time.Time `gorm:"column:completed_at"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (sqlitePaymentIntent) TableName() string { return "payment_intents" }

type sqliteProviderNotification struct {
	ID              int64     `gorm:"primaryKey"`
	NotificationRef string    `gorm:"column:notification_ref;not null;uniqueIndex"`
	AmountCents     int64     `gorm:"column:amount_cents;not null"`
	Currency        string    `gorm:"column:currency;not null"`
	SupporterName   string    `gorm:"column:supporter_name"`
	SupporterNote   string    `gorm:"column:supporter_note"`
	RawPayload      []byte    `gorm:"column:raw_payload"`
	Outcome         string    `gorm:"column:outcome"`
	MatchedIntentID *string   `gorm:"column:matched_intent_id"`
	ReceivedAt      time.Time `gorm:"column:received_at"`
}

func (sqliteProviderNotification) TableName() string { return "provider_notifications" }

type sqliteAccount struct {
	ID             int64     `gorm:"primaryKey"`
	UserRef        string    `gorm:"column:user_ref;not null;uniqueIndex"`
	BalanceCredits int64     `gorm:"column:balance_credits;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (sqliteAccount) TableName() string { return "accounts" }

type sqliteCreditEntry struct {
	ID             int64     `gorm:"primaryKey"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex"`
	UserRef        string    `gorm:"column:user_ref;not null;index"`
	AmountCents    int64     `gorm:"column:amount_cents;not null"`
	Credits        int64     `gorm:"column:credits;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (sqliteCreditEntry) TableName() string { return "credit_entries" }

type stubOrchestrator struct {
	outcome reconciliation.Outcome
	err     error
}

func (s *stubOrchestrator) Process(context.Context, *reconciliation.Notification) (reconciliation.Outcome, error) {
	return s.outcome, s.err
}

var _ = Describe("Webhook Handler Integration", func() {
	var (
		db            *gorm.DB
		intentRepo    intent.RepositoryAPI
		ledgerService *ledger.Service
		handler       *reconciliation.WebhookHandler
	)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/provider/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.HandleProviderWebhook(rec, req)
		return rec
	}

	addPendingIntent := func(intentID, userRef string, amountCents int64, age time.Duration) {
		now := time.Now().UTC()
		err := intentRepo.Create(context.Background(), &intentDatamodel.PaymentIntent{
			IntentID:    intentID,
			UserRef:     userRef,
			AmountCents: amountCents,
			Currency:    "USD",
			Status:      intentDatamodel.StatusPending,
			CreatedAt:   now.Add(-age),
			UpdatedAt:   now.Add(-age),
		})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&sqlitePaymentIntent{}, &sqliteProviderNotification{}, &sqliteAccount{}, &sqliteCreditEntry{})
		Expect(err).NotTo(HaveOccurred())

		log := testLogger()
		intentRepo = intentPostgres.NewIntentRepository(db)
		notificationRepo := reconciliationPostgres.NewNotificationRepository(db)
		ledgerRepo := ledgerPostgres.NewLedgerRepository(db)

		ledgerService = ledger.NewService(ledgerRepo, ledger.DefaultConversion(100), log)
		matcher := reconciliation.NewMatcher(intentRepo, 30*time.Minute, log)
		orchestrator := reconciliation.NewOrchestrator(intentRepo, notificationRepo, matcher, ledgerService, nil, log, reconciliation.OrchestratorConfig{
			CreditAttempts:  3,
			MatcherAttempts: 3,
			RetryBase:       time.Millisecond,
		})

		handler = reconciliation.NewWebhookHandler(&transport.BaseHandler{Logger: log}, orchestrator, log)
	})

	It("should credit a matching payment end to end", func() {
		addPendingIntent("PAY-1-aaaa", "discord:111", 500, 5*time.Minute)

		rec := post(`{"transaction_id":"txn_001","supporter_name":"Alex","total_amount":"5.00","currency":"USD"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp reconciliation.WebhookResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Message).To(ContainSubstring("completed"))

		balance, err := ledgerService.GetBalance(context.Background(), "discord:111")
		Expect(err).NotTo(HaveOccurred())
		Expect(balance).To(Equal(int64(500)))
	})

	It("should not double-credit a redelivered webhook", func() {
		addPendingIntent("PAY-1-aaaa", "discord:111", 500, 5*time.Minute)

		body := `{"transaction_id":"txn_001","supporter_name":"Alex","total_amount":"5.00","currency":"USD"}`
		Expect(post(body).Code).To(Equal(http.StatusOK))

		rec := post(body)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp reconciliation.WebhookResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Message).To(ContainSubstring("duplicate"))

		balance, err := ledgerService.GetBalance(context.Background(), "discord:111")
		Expect(err).NotTo(HaveOccurred())
		Expect(balance).To(Equal(int64(500)))
	})

	It("should mark an unmatched payment unresolved and still return 200", func() {
		rec := post(`{"transaction_id":"txn_002","supporter_name":"Alex","total_amount":"7.77","currency":"USD"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp reconciliation.WebhookResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Message).To(ContainSubstring("unresolved"))

		var stored sqliteProviderNotification
		Expect(db.Where("notification_ref = ?", "txn_002").First(&stored).Error).To(Succeed())
		Expect(stored.Outcome).To(Equal(notificationDatamodel.OutcomeUnresolved))
	})

	It("should reject a malformed body with 400", func() {
		rec := post(`{"total_amount":`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a non-positive amount with 400", func() {
		rec := post(`{"transaction_id":"txn_003","total_amount":"-5.00"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should surface a wrapped typed error with its own status", func() {
		stub := &stubOrchestrator{err: fmt.Errorf("reconcile txn_001: %w", apperrors.ErrDuplicateNotification)}
		handler = reconciliation.NewWebhookHandler(&transport.BaseHandler{Logger: testLogger()}, stub, testLogger())

		rec := post(`{"transaction_id":"txn_001","total_amount":"5.00"}`)
		Expect(rec.Code).To(Equal(http.StatusConflict))

		var resp apperrors.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Error.Code).To(Equal(apperrors.ErrCodeDuplicateNotification))
	})

	It("should return 500 for plain infrastructure errors", func() {
		stub := &stubOrchestrator{err: errors.New("connection refused")}
		handler = reconciliation.NewWebhookHandler(&transport.BaseHandler{Logger: testLogger()}, stub, testLogger())

		rec := post(`{"transaction_id":"txn_001","total_amount":"5.00"}`)
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	It("should record the matched intent on the notification", func() {
		addPendingIntent("PAY-1-aaaa", "discord:111", 500, 5*time.Minute)

		Expect(post(`{"transaction_id":"txn_001","total_amount":"5.00"}`).Code).To(Equal(http.StatusOK))

		var stored sqliteProviderNotification
		Expect(db.Where("notification_ref = ?", "txn_001").First(&stored).Error).To(Succeed())
		Expect(stored.Outcome).To(Equal(notificationDatamodel.OutcomeCompleted))
		Expect(stored.MatchedIntentID).NotTo(BeNil())
		Expect(*stored.MatchedIntentID).To(Equal("PAY-1-aaaa"))
	})
})
