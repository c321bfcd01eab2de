package reconciliation_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	notificationDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/notification"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
)

// Mock notification repository for testing
type mockNotificationRepository struct {
	received    map[string]*notificationDatamodel.ProviderNotification
	outcomes    map[string]string
	recordError error
}

func newMockNotificationRepository() *mockNotificationRepository {
	return &mockNotificationRepository{
		received: make(map[string]*notificationDatamodel.ProviderNotification),
		outcomes: make(map[string]string),
	}
}

func (m *mockNotificationRepository) RecordReceived(_ context.Context, n *notificationDatamodel.ProviderNotification) error {
	if m.recordError != nil {
		return m.recordError
	}
	if _, exists := m.received[n.NotificationRef]; exists {
		return apperrors.ErrDuplicateNotification
	}
	m.received[n.NotificationRef] = n
	return nil
}

func (m *mockNotificationRepository) GetByRef(_ context.Context, notificationRef string) (*notificationDatamodel.ProviderNotification, error) {
	n, exists := m.received[notificationRef]
	if !exists {
		return nil, apperrors.ErrNotificationNotFound
	}
	return n, nil
}

func (m *mockNotificationRepository) SetOutcome(_ context.Context, notificationRef, outcome string, matchedIntentID *string) error {
	m.outcomes[notificationRef] = outcome
	if n, exists := m.received[notificationRef]; exists {
		n.Outcome = outcome
		if matchedIntentID != nil {
			n.MatchedIntentID = matchedIntentID
		}
	}
	return nil
}

// Mock ledger for testing
type mockLedger struct {
	applied        map[string]int64
	balances       map[string]int64
	creditError    error
	transientError error
	failuresLeft   int
	calls          int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		applied:  make(map[string]int64),
		balances: make(map[string]int64),
	}
}

func (m *mockLedger) Credit(_ context.Context, userRef string, amountCents int64, idempotencyKey string) (int64, int64, error) {
	m.calls++
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return 0, 0, m.transientError
	}
	if m.creditError != nil {
		return 0, 0, m.creditError
	}
	if credits, exists := m.applied[idempotencyKey]; exists {
		return credits, m.balances[userRef], nil
	}
	m.applied[idempotencyKey] = amountCents
	m.balances[userRef] += amountCents
	return amountCents, m.balances[userRef], nil
}

var _ = Describe("Orchestrator", func() {
	var (
		intents       *mockIntentRepository
		notifications *mockNotificationRepository
		ledgerMock    *mockLedger
		orchestrator  *reconciliation.Orchestrator
		ctx           context.Context
		now           time.Time
	)

	newNotification := func(ref string, amountCents int64, note string) *reconciliation.Notification {
		return &reconciliation.Notification{
			NotificationRef: ref,
			AmountCents:     amountCents,
			Currency:        "USD",
			SupporterName:   "Alex",
			SupporterNote:   note,
			ReceivedAt:      now,
		}
	}

	BeforeEach(func() {
		intents = newMockIntentRepository()
		notifications = newMockNotificationRepository()
		ledgerMock = newMockLedger()

		log := testLogger()
		matcher := reconciliation.NewMatcher(intents, 30*time.Minute, log)
		orchestrator = reconciliation.NewOrchestrator(intents, notifications, matcher, ledgerMock, nil, log, reconciliation.OrchestratorConfig{
			CreditAttempts:  3,
			MatcherAttempts: 3,
			RetryBase:       time.Millisecond,
		})

		ctx = context.Background()
		now = time.Now().UTC()
	})

	Describe("Process", func() {
		It("should credit the matched intent exactly once", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))

			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))

			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(500)))
			Expect(notifications.outcomes["txn_001"]).To(Equal(notificationDatamodel.OutcomeCompleted))

			completed, err := intents.GetByIntentID(ctx, "PAY-1-aaaa")
			Expect(err).NotTo(HaveOccurred())
			Expect(*completed.MatchedNotificationRef).To(Equal("txn_001"))
		})

		It("should short-circuit a redelivered notification without a second credit", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))

			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))

			outcome, err = orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeDuplicate))

			Expect(ledgerMock.calls).To(Equal(1))
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(500)))
		})

		It("should leave an unmatched amount for manual reconciliation", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))

			outcome, err := orchestrator.Process(ctx, newNotification("txn_002", 777, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeUnresolved))

			Expect(ledgerMock.calls).To(Equal(0))
			Expect(notifications.outcomes["txn_002"]).To(Equal(notificationDatamodel.OutcomeUnresolved))

			// the pending intent is untouched
			pending, err := intents.GetByIntentID(ctx, "PAY-1-aaaa")
			Expect(err).NotTo(HaveOccurred())
			Expect(pending.Status).To(Equal("pending"))
		})

		It("should treat a lost completion race as a duplicate", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			intents.completeError = apperrors.ErrIntentAlreadyCompleted

			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeDuplicate))

			Expect(ledgerMock.calls).To(Equal(0))
			Expect(notifications.outcomes["txn_001"]).To(Equal(notificationDatamodel.OutcomeDuplicate))
		})

		It("should return an error when the dedup store is down", func() {
			notifications.recordError = errors.New("connection refused")

			_, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).To(HaveOccurred())
		})

		It("should retry transient matcher failures", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			intents.findError = errors.New("connection reset")
			intents.findFailures = 2

			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))
		})

		It("should retry transient credit failures against the same idempotency key", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			ledgerMock.transientError = errors.New("deadline exceeded")
			ledgerMock.failuresLeft = 2

			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))
			Expect(ledgerMock.calls).To(Equal(3))
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(500)))
		})

		It("should surface an error when the credit keeps failing", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			ledgerMock.creditError = errors.New("deadline exceeded")

			_, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).To(HaveOccurred())

			// the intent stays completed; the credit is recovered via replay
			completed, getErr := intents.GetByIntentID(ctx, "PAY-1-aaaa")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(completed.Status).To(Equal("completed"))
		})

		It("should finish the credit on redelivery after a credit outage", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			ledgerMock.creditError = errors.New("deadline exceeded")

			_, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).To(HaveOccurred())
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(0)))

			// ledger recovers, provider redelivers the same notification
			ledgerMock.creditError = nil
			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(500)))
			Expect(notifications.outcomes["txn_001"]).To(Equal(notificationDatamodel.OutcomeCompleted))
		})

		It("should not credit twice when redelivery races a finished credit", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			ledgerMock.creditError = errors.New("deadline exceeded")

			_, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).To(HaveOccurred())

			ledgerMock.creditError = nil
			for i := 0; i < 2; i++ {
				_, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(500)))
		})

		It("should rerun the match when the first delivery died before completing the intent", func() {
			intents.addPending("PAY-1-aaaa", "discord:111", 500, "USD", now.Add(-5*time.Minute))
			intents.findError = errors.New("connection reset")
			intents.findFailures = 10

			_, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).To(HaveOccurred())

			// intent store recovers before the redelivery
			intents.findFailures = 0
			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))
			Expect(ledgerMock.calls).To(Equal(1))
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(500)))
		})

		It("should route a note hint past an older candidate", func() {
			intents.addPending("PAY-1-older", "discord:111", 500, "USD", now.Add(-20*time.Minute))
			intents.addPending("PAY-2-newer", "discord:222", 500, "USD", now.Add(-2*time.Minute))

			outcome, err := orchestrator.Process(ctx, newNotification("txn_001", 500, "payment for PAY-2-NEWER"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconciliation.OutcomeCompleted))
			Expect(ledgerMock.balances["discord:222"]).To(Equal(int64(500)))
			Expect(ledgerMock.balances["discord:111"]).To(Equal(int64(0)))
		})
	})
})
