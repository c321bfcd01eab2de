package reconciliation_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
)

var _ = Describe("ProviderWebhookPayload", func() {
	var receivedAt time.Time

	decode := func(raw string) *reconciliation.ProviderWebhookPayload {
		payload, err := reconciliation.DecodePayload([]byte(raw))
		Expect(err).NotTo(HaveOccurred())
		return payload
	}

	BeforeEach(func() {
		receivedAt = time.Now().UTC()
	})

	Describe("DecodePayload", func() {
		It("should unwrap the response envelope", func() {
			payload := decode(`{"response":{"transaction_id":"txn_001","total_amount":"5.00"}}`)
			Expect(payload.TransactionID).To(Equal("txn_001"))
			Expect(payload.TotalAmount.String()).To(Equal("5.00"))
		})

		It("should accept a flat payload", func() {
			payload := decode(`{"transaction_id":"txn_001","total_amount":"5.00"}`)
			Expect(payload.TransactionID).To(Equal("txn_001"))
		})

		It("should reject truncated JSON", func() {
			_, err := reconciliation.DecodePayload([]byte(`{"total_amount":`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ToNotification", func() {
		It("should take the amount from total_amount", func() {
			payload := decode(`{"transaction_id":"txn_001","total_amount":"5.00","currency":"usd"}`)

			n, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())
			Expect(n.AmountCents).To(Equal(int64(500)))
			Expect(n.Currency).To(Equal("USD"))
			Expect(n.NotificationRef).To(Equal("txn_001"))
		})

		It("should accept numeric total_amount", func() {
			payload := decode(`{"transaction_id":"txn_001","total_amount":5}`)

			n, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())
			Expect(n.AmountCents).To(Equal(int64(500)))
		})

		It("should derive the amount from coffees times unit price", func() {
			payload := decode(`{"transaction_id":"txn_001","number_of_coffees":3,"support_coffee_price":"2.50"}`)

			n, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())
			Expect(n.AmountCents).To(Equal(int64(750)))
		})

		It("should accept the legacy support_coffees field", func() {
			payload := decode(`{"transaction_id":"txn_001","support_coffees":2,"support_coffee_price":"5.00"}`)

			n, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())
			Expect(n.AmountCents).To(Equal(int64(1000)))
		})

		It("should default the currency to USD", func() {
			payload := decode(`{"transaction_id":"txn_001","total_amount":"5.00"}`)

			n, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())
			Expect(n.Currency).To(Equal("USD"))
		})

		It("should reject a non-positive amount", func() {
			payload := decode(`{"transaction_id":"txn_001","total_amount":"0"}`)

			_, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).NotTo(BeNil())
		})

		It("should reject sub-cent precision", func() {
			payload := decode(`{"transaction_id":"txn_001","total_amount":"5.001"}`)

			_, appErr := payload.ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).NotTo(BeNil())
		})

		It("should fingerprint deliveries without a transaction id", func() {
			raw := `{"supporter_email":"alex@example.com","total_amount":"5.00","support_created_on":"2026-08-29T10:00:00Z"}`

			first, appErr := decode(raw).ToNotification(json.RawMessage(raw), receivedAt)
			Expect(appErr).To(BeNil())

			second, appErr := decode(raw).ToNotification(json.RawMessage(raw), receivedAt.Add(time.Minute))
			Expect(appErr).To(BeNil())

			// the same payload redelivered later fingerprints identically
			Expect(first.NotificationRef).To(Equal(second.NotificationRef))
			Expect(first.NotificationRef).To(HaveLen(64))
		})

		It("should fingerprint different payments differently", func() {
			first, appErr := decode(`{"supporter_email":"alex@example.com","total_amount":"5.00","support_created_on":"2026-08-29T10:00:00Z"}`).
				ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())

			second, appErr := decode(`{"supporter_email":"alex@example.com","total_amount":"5.00","support_created_on":"2026-08-29T11:00:00Z"}`).
				ToNotification(json.RawMessage(`{}`), receivedAt)
			Expect(appErr).To(BeNil())

			Expect(first.NotificationRef).NotTo(Equal(second.NotificationRef))
		})
	})
})
