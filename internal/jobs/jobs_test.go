package jobs

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/awaistahir/what-to-wear/internal/notify"
	"github.com/awaistahir/what-to-wear/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var everyDay = [7]bool{true, true, true, true, true, true, true}

type sentSMS struct {
	To   string
	Body string
}

type fakeSMS struct {
	mu       sync.Mutex
	sent     []sentSMS
	failures int
	status   int
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) (*notify.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, &notify.HTTPError{Service: "twilio", StatusCode: f.status}
	}
	f.sent = append(f.sent, sentSMS{To: to, Body: body})
	return &notify.Message{SID: "SM" + to, To: to, Status: "queued"}, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (f *fakeMailer) SendEmail(ctx context.Context, e notify.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

type fixture struct {
	st  *store.Store
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &fixture{st: st, ctx: context.Background()}
}

func (f *fixture) user(t *testing.T, phone, email string, days [7]bool) *engine.User {
	t.Helper()
	u := &engine.User{Phone: phone, Email: email, Days: days, Enabled: true}
	require.NoError(t, f.st.SaveUser(f.ctx, u))
	return u
}

func (f *fixture) item(t *testing.T, userID string, cat engine.Category, id, desc string) engine.Item {
	t.Helper()
	it := &engine.Item{ID: id, UserID: userID, Category: cat, Description: desc, Enabled: true}
	require.NoError(t, f.st.SaveItem(f.ctx, it))
	return *it
}

func TestDailyJobPicksAndNotifies(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryTop, "T2", "White Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")

	// yesterday's top is not eligible
	_, err := f.st.SaveOutfit(f.ctx, alice.ID, &engine.Outfit{Top: engine.Item{ID: "T1"}, Bottom: engine.Item{ID: "B1"}})
	require.NoError(t, err)

	sms := &fakeSMS{}
	job := &DailyJob{Store: f.st, SMS: sms, Log: logger.Nop(), Retry: notify.Policy{Attempts: 1}, Concurrency: 2}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Notified)
	assert.Empty(t, report.Skipped)

	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+15550001111", sms.sent[0].To)
	assert.Equal(t, "Today's outfit: White Tee, Jeans. Reply NO if you don't like it.", sms.sent[0].Body)

	latest, err := f.st.LatestOutfit(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "T2", latest.TopID)
}

func TestDailyJobSkipsWithoutAbortingBatch(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")

	// no wardrobe at all
	carol := f.user(t, "+15550003333", "", everyDay)

	// every combination unallowed
	dave := f.user(t, "+15550004444", "", everyDay)
	f.item(t, dave.ID, engine.CategoryTop, "DT", "Polo")
	f.item(t, dave.ID, engine.CategoryBottom, "DB", "Shorts")
	require.NoError(t, f.st.AddUnallowedPair(f.ctx, engine.UnallowedPair{
		UserID: dave.ID, Category1: engine.CategoryTop, ID1: "DT", Category2: engine.CategoryBottom, ID2: "DB",
	}))

	sms := &fakeSMS{}
	job := &DailyJob{
		Store:       f.st,
		SMS:         sms,
		Log:         logger.Nop(),
		Selector:    engine.SelectOptions{MaxAttempts: 20},
		Retry:       notify.Policy{Attempts: 1},
		Concurrency: 3,
	}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Notified)

	reasons := map[string]string{}
	for _, s := range report.Skipped {
		reasons[s.UserID] = s.Reason
	}
	require.Len(t, reasons, 2)
	assert.Contains(t, reasons[carol.ID], engine.ErrNoEligibleItems.Error())
	assert.Contains(t, reasons[dave.ID], engine.ErrSelectionUnbounded.Error())
}

// datedHistory serves outfit history with fixed timestamps, filtered the
// way the sqlite store filters it (strictly after since, newest first).
type datedHistory struct {
	*store.Store
	records []engine.OutfitRecord
}

func (d *datedHistory) OutfitsSince(ctx context.Context, userID string, since time.Time) ([]engine.OutfitRecord, error) {
	out := []engine.OutfitRecord{}
	for _, r := range d.records {
		if r.UserID == userID && r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestDailyJobFreshnessIgnoresRunTimeJitter(t *testing.T) {
	at := func(day int, sec int) time.Time {
		return time.Date(2024, 12, day, 8, 0, sec, 0, time.UTC)
	}

	tests := []struct {
		name string
		now  time.Time
	}{
		{"fires earlier than previous runs", at(5, 5)},
		{"fires later than previous runs", at(5, 15)},
		{"fires late in the evening", time.Date(2024, 12, 5, 23, 59, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.user(t, "+15550001111", "", everyDay)
			f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
			f.item(t, alice.ID, engine.CategoryTop, "T2", "White Tee")
			f.item(t, alice.ID, engine.CategoryTop, "T3", "Flannel")
			f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")

			// every top is in the last three records
			hist := &datedHistory{Store: f.st, records: []engine.OutfitRecord{
				{UserID: alice.ID, TopID: "T3", BottomID: "B1", CreatedAt: at(4, 10)},
				{UserID: alice.ID, TopID: "T2", BottomID: "B1", CreatedAt: at(3, 10)},
				{UserID: alice.ID, TopID: "T1", BottomID: "B1", CreatedAt: at(2, 10)},
			}}

			sms := &fakeSMS{}
			job := &DailyJob{Store: hist, SMS: sms, Log: logger.Nop(), Retry: notify.Policy{Attempts: 1}, Now: func() time.Time { return tt.now }}

			report, err := job.Run(f.ctx)
			require.NoError(t, err)
			assert.Empty(t, report.Picks)
			require.Len(t, report.Skipped, 1)
			assert.Contains(t, report.Skipped[0].Reason, engine.ErrNoEligibleItems.Error())
			assert.Empty(t, sms.sent)
		})
	}
}

func TestHistoryCutoff(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2024, 12, 5, 8, 0, 5, 0, loc)

	assert.True(t, historyCutoff(now, 3).Equal(time.Date(2024, 12, 2, 0, 0, 0, 0, loc)))
	assert.True(t, historyCutoff(now, 0).Equal(time.Date(2024, 12, 5, 0, 0, 0, 0, loc)))
}

func TestDailyJobSkipsUserWithoutPhoneBeforePicking(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "", "alice@example.com", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")

	sms := &fakeSMS{}
	job := &DailyJob{Store: f.st, SMS: sms, Log: logger.Nop(), Retry: notify.Policy{Attempts: 1}}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Notified)
	assert.Empty(t, report.Picks)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, errNoPhone.Error(), report.Skipped[0].Reason)

	// nothing persisted, so tomorrow's freshness is unaffected
	_, err = f.st.LatestOutfit(f.ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDailyJobRespectsSchedule(t *testing.T) {
	f := newFixture(t)
	monday := time.Date(2024, 12, 2, 8, 0, 0, 0, time.UTC)

	weekend := f.user(t, "+15550001111", "", [7]bool{false, false, false, false, false, true, true})
	f.item(t, weekend.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, weekend.ID, engine.CategoryBottom, "B1", "Jeans")

	sms := &fakeSMS{}
	job := &DailyJob{Store: f.st, SMS: sms, Log: logger.Nop(), Retry: notify.Policy{Attempts: 1}, Now: func() time.Time { return monday }}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, sms.sent)
}

func TestDailyJobRetriesDelivery(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")

	sms := &fakeSMS{failures: 2, status: 503}
	job := &DailyJob{Store: f.st, SMS: sms, Log: logger.Nop(), Retry: notify.Policy{Attempts: 3}}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	assert.Len(t, sms.sent, 1)
}

func TestDailyJobDeliveryFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")

	sms := &fakeSMS{failures: 5, status: 500}
	job := &DailyJob{Store: f.st, SMS: sms, Log: logger.Nop(), Retry: notify.Policy{Attempts: 2}}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Notified)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 3, sms.failures)

	_, err = f.st.LatestOutfit(f.ctx, alice.ID)
	assert.NoError(t, err)
}

func TestDailyJobDryRun(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")
	f.item(t, alice.ID, engine.CategoryShoe, "S1", "Boots")

	sms := &fakeSMS{}
	job := &DailyJob{Store: f.st, SMS: sms, Log: logger.Nop(), DryRun: true}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.Picks, 1)
	assert.Nil(t, report.Picks[0].Record)
	require.NotNil(t, report.Picks[0].Outfit.Shoe)
	assert.Equal(t, "S1", report.Picks[0].Outfit.Shoe.ID)
	assert.Empty(t, sms.sent)

	_, err = f.st.LatestOutfit(f.ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSummaryJobEmailsRanking(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "alice@example.com", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryTop, "T2", "White Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")
	require.NoError(t, f.st.SetItemEnabled(f.ctx, "T2", false))

	for _, top := range []string{"T1", "T1", "T2"} {
		_, err := f.st.SaveOutfit(f.ctx, alice.ID, &engine.Outfit{Top: engine.Item{ID: top}, Bottom: engine.Item{ID: "B1"}})
		require.NoError(t, err)
	}

	// no email address
	f.user(t, "+15550002222", "", everyDay)

	mail := &fakeMailer{}
	var summaries []*engine.UsageSummary
	var mu sync.Mutex
	job := &SummaryJob{
		Store:   f.st,
		Mail:    mail,
		Log:     logger.Nop(),
		Retry:   notify.Policy{Attempts: 1},
		Subject: "Your 90 days",
		OnSummary: func(u *engine.User, s *engine.UsageSummary) {
			mu.Lock()
			defer mu.Unlock()
			if u.ID == alice.ID {
				summaries = append(summaries, s)
			}
		},
	}

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Notified)
	assert.Len(t, report.Skipped, 1)

	require.Len(t, summaries, 1)
	assert.Equal(t, []engine.UsageCount{
		{ItemID: "T1", Description: "Black Tee", Count: 2},
		{ItemID: "T2", Description: "White Tee", Count: 1},
	}, summaries[0].Tops)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "alice@example.com", mail.sent[0].To)
	assert.Equal(t, "Your 90 days", mail.sent[0].Subject)
	assert.True(t, strings.Contains(mail.sent[0].Text, "Black Tee  x2"))
	assert.Contains(t, mail.sent[0].HTML, "<td>White Tee</td>")
}

func TestSummaryJobDanglingReference(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "alice@example.com", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")
	_, err := f.st.SaveOutfit(f.ctx, alice.ID, &engine.Outfit{Top: engine.Item{ID: "GONE"}, Bottom: engine.Item{ID: "B1"}})
	require.NoError(t, err)

	mail := &fakeMailer{}
	job := &SummaryJob{Store: f.st, Mail: mail, Log: logger.Nop(), Retry: notify.Policy{Attempts: 1}}

	_, err = job.Summarize(f.ctx, alice.ID)
	assert.ErrorIs(t, err, engine.ErrDanglingReference)

	report, err := job.Run(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "GONE")
	assert.Empty(t, mail.sent)
}

func TestSummaryJobWindow(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "alice@example.com", everyDay)
	f.item(t, alice.ID, engine.CategoryTop, "T1", "Black Tee")
	f.item(t, alice.ID, engine.CategoryBottom, "B1", "Jeans")
	_, err := f.st.SaveOutfit(f.ctx, alice.ID, &engine.Outfit{Top: engine.Item{ID: "T1"}, Bottom: engine.Item{ID: "B1"}})
	require.NoError(t, err)

	job := &SummaryJob{Store: f.st, Log: logger.Nop(), Window: time.Hour, Now: func() time.Time { return time.Now().Add(2 * time.Hour) }}

	s, err := job.Summarize(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Tops)
}

func TestFeedbackRecordsLastTopAndBottom(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "+15550001111", "", everyDay)
	fb := &Feedback{Store: f.st, Log: logger.Nop()}

	_, err := fb.RecordNegative(f.ctx, "+19999999999")
	assert.ErrorIs(t, err, ErrUnknownSender)

	_, err = fb.RecordNegative(f.ctx, alice.Phone)
	assert.ErrorIs(t, err, ErrNoRecentOutfit)

	_, err = f.st.SaveOutfit(f.ctx, alice.ID, &engine.Outfit{
		Top:    engine.Item{ID: "T1"},
		Bottom: engine.Item{ID: "B1"},
		Shoe:   &engine.Item{ID: "S1"},
	})
	require.NoError(t, err)

	pair, err := fb.RecordNegative(f.ctx, alice.Phone)
	require.NoError(t, err)
	want := engine.UnallowedPair{UserID: alice.ID, Category1: engine.CategoryTop, ID1: "T1", Category2: engine.CategoryBottom, ID2: "B1"}
	assert.Equal(t, want, *pair)

	// a second "no" does not duplicate the pair
	_, err = fb.RecordNegative(f.ctx, alice.Phone)
	require.NoError(t, err)

	pairs, err := f.st.UnallowedPairs(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []engine.UnallowedPair{want}, pairs)
}
