package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storeledger/internal/config"
	"storeledger/internal/domain"
	"storeledger/internal/notification"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type emailFixture struct {
	router *chi.Mux
	emails *mockEmailRepo
	user   *domain.User
}

func newEmailFixture(t *testing.T) *emailFixture {
	t.Helper()

	emails := &mockEmailRepo{}
	users := newMockUserRepo()

	user := &domain.User{ID: uuid.New(), Email: "buyer@example.com", Name: "Buyer", Role: "buyer"}
	require.NoError(t, users.Create(context.Background(), user))

	dispatcher := notification.NewDispatcher(&mockTxRunner{}, emails, notification.NewLogSender(zap.NewNop()), config.NotifierConfig{
		MaxAttempts:      3,
		BackoffBase:      time.Millisecond,
		AttemptTimeout:   time.Second,
		DispatchInterval: time.Minute,
	}, zap.NewNop())

	router := chi.NewRouter()
	NewEmailHandler(emails, users, dispatcher, zap.NewNop()).RegisterRoutes(router)

	return &emailFixture{router: router, emails: emails, user: user}
}

func (f *emailFixture) post(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/emails", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueEmail_WelcomeQueued(t *testing.T) {
	f := newEmailFixture(t)

	rec := f.post(t, EnqueueEmailRequest{UserID: f.user.ID.String(), Type: "WELCOME"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, f.emails.jobs, 1)
	job := f.emails.jobs[0]
	assert.Equal(t, domain.EmailTypeWelcome, job.Type)
	assert.Equal(t, domain.EmailStatusPending, job.Status)
	assert.Equal(t, f.user.Email, job.RecipientEmail)
	require.NotNil(t, job.RecipientID)
	assert.Equal(t, f.user.ID, *job.RecipientID)
	assert.Contains(t, job.Subject, "Welcome")
	assert.Contains(t, job.Body, f.user.Name)
}

func TestEnqueueEmail_UnknownUserNotFound(t *testing.T) {
	f := newEmailFixture(t)

	rec := f.post(t, EnqueueEmailRequest{UserID: uuid.NewString(), Type: "WELCOME"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.emails.jobs)
}

func TestEnqueueEmail_RejectsInternalTypes(t *testing.T) {
	f := newEmailFixture(t)

	for _, emailType := range []string{"LOW_STOCK", "ANALYTICS_REPORT", "NEWSLETTER"} {
		rec := f.post(t, EnqueueEmailRequest{UserID: f.user.ID.String(), Type: emailType})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "type %s must be rejected", emailType)
		assert.Contains(t, rec.Body.String(), "validation failed")
	}
	assert.Empty(t, f.emails.jobs)
}

func TestEnqueueEmail_MissingUserIDFailsValidation(t *testing.T) {
	f := newEmailFixture(t)

	rec := f.post(t, EnqueueEmailRequest{Type: "WELCOME"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.emails.jobs)
}
