package verification_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/signature"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/notify"
	"github.com/wepublish/dorfkoenig/internal/verification"
)

const (
	appSecret   = "app-secret"
	verifyToken = "verify-me"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memDrafts struct {
	mu           sync.Mutex
	drafts       map[string]*domain.Draft
	beforeAppend func(*domain.Draft)
	lookupErr    error
	recordErr    error
	writes       int
	sweeps       int
	sentIDs      []string
	overridden   *time.Time
}

func newMemDrafts(drafts ...*domain.Draft) *memDrafts {
	m := &memDrafts{drafts: map[string]*domain.Draft{}}
	for _, d := range drafts {
		m.drafts[d.ID] = d
	}
	return m
}

func (m *memDrafts) Create(_ context.Context, d *domain.Draft) error {
	d.ID = fmt.Sprintf("draft-%d", len(m.drafts)+1)
	d.VerificationStatus = domain.VerificationPending
	m.drafts[d.ID] = d
	m.writes++
	return nil
}

func (m *memDrafts) GetByID(_ context.Context, id, userID string) (*domain.Draft, error) {
	d, ok := m.drafts[id]
	if !ok || d.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDrafts) List(_ context.Context, userID string) ([]domain.Draft, error) {
	var out []domain.Draft
	for _, d := range m.drafts {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memDrafts) UpdateContent(_ context.Context, d *domain.Draft) error {
	m.writes++
	m.drafts[d.ID] = d
	return nil
}

func (m *memDrafts) OverrideStatus(
	_ context.Context, id, _ string, status domain.VerificationStatus, resolvedAt *time.Time,
) error {
	m.writes++
	m.drafts[id].VerificationStatus = status
	m.overridden = resolvedAt
	return nil
}

func (m *memDrafts) MarkSent(_ context.Context, id, _ string, sentAt, timeoutAt time.Time, ids []string) error {
	m.writes++
	d := m.drafts[id]
	d.VerificationStatus = domain.VerificationPending
	d.VerificationResponses = domain.VerificationResponses{}
	d.VerificationSentAt = &sentAt
	d.VerificationTimeoutAt = &timeoutAt
	d.VerificationResolvedAt = nil
	m.sentIDs = ids
	return nil
}

func (m *memDrafts) FindAwaitingReply(_ context.Context, villageIDs []string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, d := range m.drafts {
		for _, v := range villageIDs {
			if d.VillageID == v && d.VerificationStatus == domain.VerificationPending &&
				d.VerificationSentAt != nil && d.VerificationResolvedAt == nil {
				cp := *d
				cp.VerificationResponses = append(domain.VerificationResponses(nil), d.VerificationResponses...)
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDrafts) AppendResponse(
	_ context.Context, id string, resp domain.VerificationResponse,
	resolve func(domain.VerificationResponses) domain.VerificationStatus,
) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	d, ok := m.drafts[id]
	if !ok || d.VerificationStatus != domain.VerificationPending || d.VerificationResolvedAt != nil {
		return nil, domain.ErrNotFound
	}
	if m.beforeAppend != nil {
		m.beforeAppend(d)
	}
	if d.VerificationResponses.Answered(resp.Phone) {
		return nil, domain.ErrAlreadyResponded
	}
	m.writes++
	d.VerificationResponses = append(d.VerificationResponses, resp)
	d.VerificationStatus = resolve(d.VerificationResponses)
	if d.VerificationStatus != domain.VerificationPending {
		at := resp.RespondedAt
		d.VerificationResolvedAt = &at
	}
	cp := *d
	return &cp, nil
}

func (m *memDrafts) ResolveTimeouts(context.Context, time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	return 0, nil
}

type fakeMessenger struct {
	sent   []notify.Message
	failAt int
}

func (f *fakeMessenger) Send(_ context.Context, msg notify.Message) (string, error) {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return "", errors.New("WhatsApp API error: 400 - bad number")
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("wamid.%d", len(f.sent)), nil
}

func directory(t *testing.T) verification.Directory {
	t.Helper()
	dir, err := verification.ParseDirectory(`{
		"riehen": [
			{"name": "Anna", "phone": "+41790000001"},
			{"name": "Beat", "phone": "+41790000002"},
			{"name": "Carla", "phone": "+41790000003"}
		],
		"bettingen": [
			{"name": "Dora", "phone": "+41790000004"},
			{"name": "Emil", "phone": "41790000005"}
		]
	}`)
	require.NoError(t, err)
	return dir
}

func newService(t *testing.T, drafts *memDrafts, msgr *fakeMessenger) *verification.Service {
	t.Helper()
	if msgr == nil {
		msgr = &fakeMessenger{}
	}
	return verification.NewService(verification.Deps{
		Drafts:      drafts,
		Messenger:   msgr,
		Directory:   directory(t),
		Signer:      signature.NewSigner(appSecret),
		VerifyToken: verifyToken,
		Logger:      logger.NewNop(),
		Now:         func() time.Time { return now },
	})
}

func sentDraft(id, village string) *domain.Draft {
	sent := now.Add(-10 * time.Minute)
	timeout := sent.Add(verification.Timeout)
	return &domain.Draft{
		ID:                    id,
		UserID:                "user-1",
		VillageID:             village,
		VillageName:           village,
		Body:                  "Text",
		VerificationStatus:    domain.VerificationPending,
		VerificationSentAt:    &sent,
		VerificationTimeoutAt: &timeout,
	}
}

func reply(from, title string) []byte {
	return []byte(fmt.Sprintf(`{"entry":[{"changes":[{"value":{"messages":[{"from":%q,"type":"interactive",`+
		`"interactive":{"type":"button_reply","button_reply":{"id":"b1","title":%q}}}]}}]}]}`, from, title))
}

func deliver(t *testing.T, svc *verification.Service, body []byte) verification.WebhookStatus {
	t.Helper()
	return svc.HandleWebhook(context.Background(), body, signature.NewSigner(appSecret).Sign(body))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	answer := func(statuses ...domain.VerificationStatus) domain.VerificationResponses {
		out := make(domain.VerificationResponses, 0, len(statuses))
		for i, s := range statuses {
			out = append(out, domain.VerificationResponse{Phone: fmt.Sprint(i), Response: s})
		}
		return out
	}
	c, r := domain.VerificationConfirmed, domain.VerificationRejected

	tests := []struct {
		name      string
		responses domain.VerificationResponses
		total     int
		want      domain.VerificationStatus
	}{
		{name: "no answers", total: 3, want: domain.VerificationPending},
		{name: "one of three confirmed", responses: answer(c), total: 3, want: domain.VerificationPending},
		{name: "two of three confirmed", responses: answer(c, c), total: 3, want: domain.VerificationConfirmed},
		{name: "two of three rejected", responses: answer(r, c, r), total: 3, want: domain.VerificationRejected},
		{name: "tie with everyone answered", responses: answer(c, r), total: 2, want: domain.VerificationConfirmed},
		{name: "tie with answers missing", responses: answer(c, r), total: 4, want: domain.VerificationPending},
		{name: "single correspondent rejects", responses: answer(r), total: 1, want: domain.VerificationRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, verification.Resolve(tt.responses, tt.total))
		})
	}
}

func TestDirectory(t *testing.T) {
	t.Parallel()

	dir := directory(t)
	assert.Len(t, dir.ForVillage("riehen"), 3)
	assert.Empty(t, dir.ForVillage("basel"))

	m, ok := dir.FindByPhone("41790000002")
	require.True(t, ok)
	assert.Equal(t, "Beat", m.Correspondent.Name)
	assert.Equal(t, []string{"riehen"}, m.VillageIDs)

	m, ok = dir.FindByPhone("+41790000005")
	require.True(t, ok)
	assert.Equal(t, "Emil", m.Correspondent.Name)

	_, ok = dir.FindByPhone("41799999999")
	assert.False(t, ok)

	empty, err := verification.ParseDirectory("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = verification.ParseDirectory("{not json")
	require.Error(t, err)
}

func TestMaskPhone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "417***001", verification.MaskPhone("41790000001"))
	assert.Equal(t, "***", verification.MaskPhone("123456"))
	assert.Equal(t, "41790000001", verification.NormalizePhone(" +41790000001 "))
}

func TestHandleWebhook_MajorityConfirmsBeforeLastReply(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "riehen"))
	svc := newService(t, drafts, nil)

	assert.Equal(t, verification.StatusProcessed, deliver(t, svc, reply("41790000001", "Bestätigt")))
	assert.Equal(t, domain.VerificationPending, drafts.drafts["d1"].VerificationStatus)
	assert.Nil(t, drafts.drafts["d1"].VerificationResolvedAt)

	assert.Equal(t, verification.StatusProcessed, deliver(t, svc, reply("41790000002", "bestätigt")))
	assert.Equal(t, domain.VerificationConfirmed, drafts.drafts["d1"].VerificationStatus)
	require.NotNil(t, drafts.drafts["d1"].VerificationResolvedAt)
	assert.Len(t, drafts.drafts["d1"].VerificationResponses, 2)
	assert.Equal(t, 2, drafts.sweeps)

	// resolved drafts no longer accept replies
	assert.Equal(t, verification.StatusNoPendingDraft, deliver(t, svc, reply("41790000003", "Abgelehnt")))
}

func TestHandleWebhook_TieConfirms(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "bettingen"))
	svc := newService(t, drafts, nil)

	assert.Equal(t, verification.StatusProcessed, deliver(t, svc, reply("41790000004", "Bestätigt")))
	assert.Equal(t, verification.StatusProcessed, deliver(t, svc, reply("41790000005", "Abgelehnt")))
	assert.Equal(t, domain.VerificationConfirmed, drafts.drafts["d1"].VerificationStatus)
}

func TestHandleWebhook_InvalidSignatureDoesNotMutate(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "riehen"))
	svc := newService(t, drafts, nil)
	body := reply("41790000001", "Bestätigt")

	for _, header := range []string{"", "sha256=00", signature.NewSigner("other").Sign(body)} {
		assert.Equal(t, verification.StatusInvalidSignature, svc.HandleWebhook(context.Background(), body, header))
	}
	assert.Zero(t, drafts.writes)
	assert.Zero(t, drafts.sweeps)
	assert.Empty(t, drafts.drafts["d1"].VerificationResponses)
}

func TestHandleWebhook_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   []byte
		setup  func(*memDrafts)
		status verification.WebhookStatus
	}{
		{name: "malformed json", body: []byte("{"), status: verification.StatusError},
		{name: "status update without messages", body: []byte(`{"entry":[{"changes":[{"value":{"statuses":[{}]}}]}]}`), status: verification.StatusNoMessage},
		{name: "plain text message", body: []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"41790000001","type":"text","text":{"body":"ok"}}]}}]}]}`), status: verification.StatusIgnored},
		{name: "unrecognized button", body: reply("41790000001", "Vielleicht"), status: verification.StatusUnknownResponse},
		{name: "unknown phone", body: reply("41799999999", "Bestätigt"), status: verification.StatusUnknownPhone},
		{name: "no draft sent", body: reply("41790000004", "Bestätigt"), status: verification.StatusNoPendingDraft},
		{
			name:   "lookup fails",
			body:   reply("41790000001", "Bestätigt"),
			setup:  func(m *memDrafts) { m.lookupErr = errors.New("connection reset") },
			status: verification.StatusDBError,
		},
		{
			name:   "update fails",
			body:   reply("41790000001", "Bestätigt"),
			setup:  func(m *memDrafts) { m.recordErr = errors.New("connection reset") },
			status: verification.StatusUpdateError,
		},
		{
			name: "template quick reply",
			body: []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"41790000001","type":"button",` +
				`"button":{"text":"Abgelehnt","payload":"reject"}}]}}]}]}`),
			status: verification.StatusProcessed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			drafts := newMemDrafts(sentDraft("d1", "riehen"))
			if tt.setup != nil {
				tt.setup(drafts)
			}
			svc := newService(t, drafts, nil)
			assert.Equal(t, tt.status, deliver(t, svc, tt.body))
		})
	}
}

func TestHandleWebhook_AlreadyResponded(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "riehen"))
	svc := newService(t, drafts, nil)

	require.Equal(t, verification.StatusProcessed, deliver(t, svc, reply("+41790000001", "Bestätigt")))
	writes := drafts.writes

	assert.Equal(t, verification.StatusAlreadyResponded, deliver(t, svc, reply("41790000001", "Abgelehnt")))
	assert.Equal(t, writes, drafts.writes)
	assert.Len(t, drafts.drafts["d1"].VerificationResponses, 1)
}

func TestHandleWebhook_ConcurrentRepliesAreAllKept(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "riehen"))
	svc := newService(t, drafts, nil)

	bodies := [][]byte{reply("41790000001", "Bestätigt"), reply("41790000002", "Abgelehnt")}
	statuses := make([]verification.WebhookStatus, len(bodies))

	var wg sync.WaitGroup
	for i, body := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = deliver(t, svc, body)
		}()
	}
	wg.Wait()

	for _, status := range statuses {
		assert.Equal(t, verification.StatusProcessed, status)
	}
	d := drafts.drafts["d1"]
	assert.Len(t, d.VerificationResponses, 2)
	assert.True(t, d.VerificationResponses.Answered("41790000001"))
	assert.True(t, d.VerificationResponses.Answered("41790000002"))
	assert.Equal(t, domain.VerificationPending, d.VerificationStatus)
}

func TestHandleWebhook_RepeatReplyRecordedMeanwhile(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "riehen"))
	drafts.beforeAppend = func(d *domain.Draft) {
		d.VerificationResponses = append(d.VerificationResponses, domain.VerificationResponse{
			Name: "Anna", Phone: "41790000001", Response: domain.VerificationConfirmed, RespondedAt: now,
		})
	}
	svc := newService(t, drafts, nil)

	assert.Equal(t, verification.StatusAlreadyResponded, deliver(t, svc, reply("41790000001", "Abgelehnt")))
	assert.Len(t, drafts.drafts["d1"].VerificationResponses, 1)
	assert.Zero(t, drafts.writes)
}

func TestVerifySubscription(t *testing.T) {
	t.Parallel()

	svc := newService(t, newMemDrafts(), nil)

	challenge, ok := svc.VerifySubscription("subscribe", verifyToken, "12345")
	assert.True(t, ok)
	assert.Equal(t, "12345", challenge)

	_, ok = svc.VerifySubscription("subscribe", "wrong", "12345")
	assert.False(t, ok)
	_, ok = svc.VerifySubscription("unsubscribe", verifyToken, "12345")
	assert.False(t, ok)
}

func TestSend(t *testing.T) {
	t.Parallel()

	draft := &domain.Draft{ID: "d1", UserID: "user-1", VillageID: "bettingen", VillageName: "Bettingen", Body: "Neuigkeiten", VerificationStatus: domain.VerificationPending}
	drafts := newMemDrafts(draft)
	msgr := &fakeMessenger{}
	svc := newService(t, drafts, msgr)

	res, err := svc.Send(context.Background(), "d1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SentCount)
	assert.Equal(t, now.Add(verification.Timeout), res.TimeoutAt)

	require.Len(t, msgr.sent, 4)
	assert.Equal(t, "text", msgr.sent[0]["type"])
	assert.Equal(t, "template", msgr.sent[1]["type"])
	assert.Equal(t, []string{"wamid.1", "wamid.2", "wamid.3", "wamid.4"}, drafts.sentIDs)

	stored := drafts.drafts["d1"]
	require.NotNil(t, stored.VerificationSentAt)
	assert.Equal(t, now, *stored.VerificationSentAt)

	_, err = svc.Send(context.Background(), "d1", "user-1")
	require.ErrorIs(t, err, verification.ErrSendInFlight)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSend_Failures(t *testing.T) {
	t.Parallel()

	t.Run("unknown draft", func(t *testing.T) {
		t.Parallel()
		svc := newService(t, newMemDrafts(), nil)
		_, err := svc.Send(context.Background(), "missing", "user-1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("village without correspondents", func(t *testing.T) {
		t.Parallel()
		drafts := newMemDrafts(&domain.Draft{ID: "d1", UserID: "user-1", VillageID: "basel", VerificationStatus: domain.VerificationPending})
		svc := newService(t, drafts, nil)
		_, err := svc.Send(context.Background(), "d1", "user-1")
		require.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, err.Error(), "basel")
	})

	t.Run("message send fails", func(t *testing.T) {
		t.Parallel()
		drafts := newMemDrafts(&domain.Draft{ID: "d1", UserID: "user-1", VillageID: "riehen", VerificationStatus: domain.VerificationPending})
		svc := newService(t, drafts, &fakeMessenger{failAt: 3})
		_, err := svc.Send(context.Background(), "d1", "user-1")
		require.Error(t, err)
		assert.Zero(t, drafts.writes)
		assert.Nil(t, drafts.drafts["d1"].VerificationSentAt)
	})
}

func TestUpdate_Override(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts(sentDraft("d1", "riehen"))
	svc := newService(t, drafts, nil)

	got, err := svc.Update(context.Background(), "d1", "user-1", domain.DraftUpdate{VerificationStatus: ptr("abgelehnt")})
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationRejected, got.VerificationStatus)
	assert.Equal(t, domain.VerificationRejected, got.DisplayStatus)
	require.NotNil(t, drafts.overridden)
	assert.Equal(t, now, *drafts.overridden)

	_, err = svc.Update(context.Background(), "d1", "user-1", domain.DraftUpdate{VerificationStatus: ptr("maybe")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(context.Background(), "d1", "user-1", domain.DraftUpdate{})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(context.Background(), "d1", "user-1", domain.DraftUpdate{Body: ptr("  ")})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateAndDisplayStatus(t *testing.T) {
	t.Parallel()

	drafts := newMemDrafts()
	svc := newService(t, drafts, nil)

	created, err := svc.Create(context.Background(), "user-1", domain.DraftCreate{
		VillageID: "riehen", VillageName: "Riehen", Body: "Text", Title: ptr("  "), SelectedUnitIDs: &[]string{"u1"},
	})
	require.NoError(t, err)
	assert.Nil(t, created.Title)
	assert.Equal(t, domain.VerificationPending, created.DisplayStatus)

	expired := sentDraft("d9", "riehen")
	past := now.Add(-time.Minute)
	expired.VerificationTimeoutAt = &past
	drafts.drafts[expired.ID] = expired

	got, err := svc.Get(context.Background(), "d9", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationPending, got.VerificationStatus)
	assert.Equal(t, domain.VerificationConfirmed, got.DisplayStatus)
}

func ptr[T any](v T) *T { return &v }
