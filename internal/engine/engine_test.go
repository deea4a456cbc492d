package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/notify"
	"github.com/slotline/bookingd/internal/storage"
	"github.com/slotline/bookingd/internal/storage/memory"
)

// 2024-05-01 is a Wednesday.
var testNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

var (
	providerX = model.Actor{ID: 10, Role: model.RoleProvider, Name: "Provider X"}
	providerY = model.Actor{ID: 20, Role: model.RoleProvider, Name: "Provider Y"}
	studentA  = model.Actor{ID: 1, Role: model.RoleRequester, Name: "Student A"}
	studentB  = model.Actor{ID: 2, Role: model.RoleRequester, Name: "Student B"}
	studentC  = model.Actor{ID: 3, Role: model.RoleRequester, Name: "Student C"}
	admin     = model.Actor{ID: 99, Role: model.RoleAdmin, Name: "Admin"}
)

func newTestEngine(t *testing.T) (*Engine, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	e := New(memory.New(), rec, zap.NewNop())
	e.now = func() time.Time { return testNow }
	return e, rec
}

func mark(t *testing.T, e *Engine, actor model.Actor, date, start, end string) *MarkAvailableResult {
	t.Helper()
	res, err := e.MarkAvailable(context.Background(), actor, MarkAvailableInput{
		Date: date, StartTime: start, EndTime: end,
	})
	require.NoError(t, err)
	return res
}

func exactRequest(t *testing.T, e *Engine, actor model.Actor, providerID int64, date, clock string) *RequestSlotResult {
	t.Helper()
	res, err := e.RequestSlot(context.Background(), actor, RequestSlotInput{
		PreferredProviderID: &providerID,
		Date:                &date,
		Time:                &clock,
	})
	require.NoError(t, err)
	return res
}

func TestMarkAvailableEmptyWaitlist(t *testing.T) {
	e, _ := newTestEngine(t)

	res := mark(t, e, providerX, "2024-05-01", "09:00", "10:00")

	assert.Equal(t, model.SlotStatusAvailable, res.Slot.Status)
	assert.Equal(t, "wednesday", res.Slot.Weekday)
	assert.Nil(t, res.Slot.RequesterID)
	assert.Nil(t, res.AssignedRequest)
}

func TestMarkAvailableOverlapConflict(t *testing.T) {
	e, _ := newTestEngine(t)
	mark(t, e, providerX, "2024-05-01", "09:00", "10:00")

	_, err := e.MarkAvailable(context.Background(), providerX, MarkAvailableInput{
		Date: "2024-05-01", StartTime: "09:30", EndTime: "10:30",
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Adjacent intervals do not conflict.
	mark(t, e, providerX, "2024-05-01", "10:00", "11:00")
}

func TestMarkAvailableRequiresProviderRole(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.MarkAvailable(context.Background(), studentA, MarkAvailableInput{
		Date: "2024-05-01", StartTime: "09:00", EndTime: "10:00",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Admins must name the provider they submit for.
	_, err = e.MarkAvailable(context.Background(), admin, MarkAvailableInput{
		Date: "2024-05-01", StartTime: "09:00", EndTime: "10:00",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMarkAvailableAdminNeedsExplicitProviderName(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.MarkAvailable(context.Background(), admin, MarkAvailableInput{
		Date: "2024-05-01", StartTime: "09:00", EndTime: "10:00", ProviderID: providerX.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, providerX.ID, res.Slot.ProviderID)
	// The admin's own name never stands in for the provider's.
	assert.Empty(t, res.Slot.ProviderName)
}

func TestExactRequestBooksAvailableSlot(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "09:00", "10:00").Slot

	res := exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "09:00")

	assert.Equal(t, MatchStatusMatched, res.MatchStatus)
	require.NotNil(t, res.Slot)
	assert.Equal(t, slot.ID, res.Slot.ID)
	assert.Equal(t, model.SlotStatusBooked, res.Slot.Status)
	require.NotNil(t, res.Slot.RequesterID)
	assert.Equal(t, studentA.ID, *res.Slot.RequesterID)
	assert.Equal(t, model.RequestStatusAssigned, res.Request.Status)
	require.NotNil(t, res.Request.AssignedSlotID)
	assert.Equal(t, slot.ID, *res.Request.AssignedSlotID)
}

func TestExactRequestOnBookedSlotRejectsImmediately(t *testing.T) {
	e, _ := newTestEngine(t)
	mark(t, e, providerX, "2024-05-01", "09:00", "10:00")
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "09:00")

	res := exactRequest(t, e, studentB, providerX.ID, "2024-05-01", "09:00")

	assert.Equal(t, MatchStatusRejected, res.MatchStatus)
	assert.Equal(t, model.RequestStatusRejected, res.Request.Status)
	assert.Nil(t, res.Slot)
}

func TestExactRequestBeforeSlotExistsWaitsThenBinds(t *testing.T) {
	e, rec := newTestEngine(t)

	res := exactRequest(t, e, studentC, providerX.ID, "2024-06-10", "14:00")
	assert.Equal(t, MatchStatusWaiting, res.MatchStatus)
	assert.Equal(t, model.RequestStatusWaiting, res.Request.Status)
	assert.True(t, res.Request.WaitingForProvider)

	marked := mark(t, e, providerX, "2024-06-10", "14:00", "15:00")

	// The slot is created directly booked to the waiting request.
	assert.Equal(t, model.SlotStatusBooked, marked.Slot.Status)
	require.NotNil(t, marked.Slot.RequesterID)
	assert.Equal(t, studentC.ID, *marked.Slot.RequesterID)
	require.NotNil(t, marked.AssignedRequest)
	assert.Equal(t, res.Request.ID, marked.AssignedRequest.ID)
	assert.Equal(t, model.RequestStatusAssigned, marked.AssignedRequest.Status)

	matched := rec.ByType(notify.EventMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, studentC.ID, matched[0].UserID)
}

func TestWaitlistFIFOHeadWinsRestCancelled(t *testing.T) {
	e, rec := newTestEngine(t)

	first := exactRequest(t, e, studentA, providerX.ID, "2024-06-10", "14:00")
	second := exactRequest(t, e, studentB, providerX.ID, "2024-06-10", "14:00")

	marked := mark(t, e, providerX, "2024-06-10", "14:00", "15:00")

	require.NotNil(t, marked.AssignedRequest)
	assert.Equal(t, first.Request.ID, marked.AssignedRequest.ID)

	ctx := context.Background()
	lost, err := e.GetRequest(ctx, admin, second.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, lost.Status)

	taken := rec.ByType(notify.EventQueueMateTook)
	require.Len(t, taken, 1)
	assert.Equal(t, studentB.ID, taken[0].UserID)
}

func TestPreferenceRequestMatchesProviderSlot(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot

	res, err := e.RequestSlot(context.Background(), studentA, RequestSlotInput{
		PreferredDays:       []string{"wednesday"},
		PreferredTimes:      []string{"10:00"},
		PreferredProviderID: &providerX.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, MatchStatusMatched, res.MatchStatus)
	require.NotNil(t, res.Slot)
	assert.Equal(t, slot.ID, res.Slot.ID)
}

func TestPreferenceRequestFallsBackToAlternateProvider(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerY, "2024-05-01", "10:00", "11:00").Slot

	res, err := e.RequestSlot(context.Background(), studentA, RequestSlotInput{
		PreferredDays:       []string{"wednesday"},
		PreferredTimes:      []string{"10:00"},
		PreferredProviderID: &providerX.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, MatchStatusAlternateOffered, res.MatchStatus)
	require.NotNil(t, res.Slot)
	assert.Equal(t, slot.ID, res.Slot.ID)
	assert.Equal(t, providerY.ID, res.Slot.ProviderID)
}

func TestPreferenceRequestParksOnFirstUnmatchedPair(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.RequestSlot(context.Background(), studentA, RequestSlotInput{
		PreferredDays:       []string{"thursday", "friday"},
		PreferredTimes:      []string{"09:00", "11:00"},
		PreferredProviderID: &providerX.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, MatchStatusWaiting, res.MatchStatus)
	require.NotNil(t, res.Request.RequestedDate)
	require.NotNil(t, res.Request.RequestedTime)
	// First pair only: thursday after 2024-05-01 is 2024-05-02.
	assert.Equal(t, "2024-05-02", *res.Request.RequestedDate)
	assert.Equal(t, "09:00", *res.Request.RequestedTime)
	assert.True(t, res.Request.WaitingForProvider)
}

func TestPreferenceRequestWithoutProviderMatchesAnyone(t *testing.T) {
	e, _ := newTestEngine(t)
	mark(t, e, providerY, "2024-05-01", "10:00", "11:00")

	res, err := e.RequestSlot(context.Background(), studentA, RequestSlotInput{
		PreferredDays:  []string{"wednesday"},
		PreferredTimes: []string{"10:00"},
	})
	require.NoError(t, err)

	// No preference existed, so this is a plain match, not an alternate.
	assert.Equal(t, MatchStatusMatched, res.MatchStatus)
}

func TestRequestSlotValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RequestSlot(ctx, studentA, RequestSlotInput{})
	assert.ErrorIs(t, err, ErrValidation)

	date := "2024-05-01"
	_, err = e.RequestSlot(ctx, studentA, RequestSlotInput{Date: &date})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.RequestSlot(ctx, studentA, RequestSlotInput{
		PreferredDays:  []string{"noday"},
		PreferredTimes: []string{"10:00"},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.RequestSlot(ctx, providerX, RequestSlotInput{
		PreferredDays:  []string{"monday"},
		PreferredTimes: []string{"10:00"},
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// parkViaPreference puts a waiting request into provider X's bucket for
// 2024-05-01 10:00 by going through the preference path after the slot
// is already booked.
func parkViaPreference(t *testing.T, e *Engine, actor model.Actor) *model.StudentRequest {
	t.Helper()
	res, err := e.RequestSlot(context.Background(), actor, RequestSlotInput{
		PreferredDays:       []string{"wednesday"},
		PreferredTimes:      []string{"10:00"},
		PreferredProviderID: &providerX.ID,
	})
	require.NoError(t, err)
	require.Equal(t, MatchStatusWaiting, res.MatchStatus)
	return res.Request
}

func TestCancelBookedReassignsToWaitlistHead(t *testing.T) {
	e, rec := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "10:00")
	waiting := parkViaPreference(t, e, studentB)

	res, err := e.CancelSlot(context.Background(), studentA, CancelSlotInput{SlotID: slot.ID})
	require.NoError(t, err)

	assert.Equal(t, model.SlotStatusBooked, res.Slot.Status)
	require.NotNil(t, res.Slot.RequesterID)
	assert.Equal(t, studentB.ID, *res.Slot.RequesterID)
	require.NotNil(t, res.ReassignedTo)
	assert.Equal(t, waiting.ID, res.ReassignedTo.ID)
	assert.Equal(t, model.RequestStatusAssigned, res.ReassignedTo.Status)

	matched := rec.ByType(notify.EventMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, studentB.ID, matched[0].UserID)
}

func TestCancelBookedEmptyWaitlistReleases(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "10:00")

	res, err := e.CancelSlot(context.Background(), studentA, CancelSlotInput{SlotID: slot.ID})
	require.NoError(t, err)

	assert.Equal(t, model.SlotStatusAvailable, res.Slot.Status)
	assert.Nil(t, res.Slot.RequesterID)
	assert.Nil(t, res.Slot.RequesterName)
	assert.Nil(t, res.ReassignedTo)
}

func TestCancelBookedReassignFalsePreservesBucket(t *testing.T) {
	e, rec := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "10:00")
	waiting := parkViaPreference(t, e, studentB)

	off := false
	res, err := e.CancelSlot(context.Background(), providerX, CancelSlotInput{SlotID: slot.ID, Reassign: &off})
	require.NoError(t, err)

	assert.Equal(t, model.SlotStatusAvailable, res.Slot.Status)
	assert.Nil(t, res.Slot.RequesterID)

	kept, err := e.GetRequest(context.Background(), admin, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusWaiting, kept.Status)

	still := rec.ByType(notify.EventStillWaiting)
	require.Len(t, still, 1)
	assert.Equal(t, studentB.ID, still[0].UserID)
}

func TestCancelAvailableProviderHardDeletes(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot

	res, err := e.CancelSlot(context.Background(), providerX, CancelSlotInput{SlotID: slot.ID})
	require.NoError(t, err)

	assert.True(t, res.Removed)
	assert.Equal(t, model.SlotStatusRemoved, res.Slot.Status)

	_, err = e.store.SlotByID(context.Background(), slot.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCancelAvailableAdminSoftCancels(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot

	res, err := e.CancelSlot(context.Background(), admin, CancelSlotInput{SlotID: slot.ID})
	require.NoError(t, err)

	assert.False(t, res.Removed)
	assert.Equal(t, model.SlotStatusCancelled, res.Slot.Status)

	kept, err := e.store.SlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCancelled, kept.Status)
}

func TestCancelAvailableAdminNotifiesProviderAndBucket(t *testing.T) {
	e, rec := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "10:00")
	waiting := parkViaPreference(t, e, studentB)

	// Release without reassignment leaves studentB waiting in the bucket.
	off := false
	_, err := e.CancelSlot(context.Background(), providerX, CancelSlotInput{SlotID: slot.ID, Reassign: &off})
	require.NoError(t, err)
	before := len(rec.ByType(notify.EventSlotCancelled))

	_, err = e.CancelSlot(context.Background(), admin, CancelSlotInput{SlotID: slot.ID})
	require.NoError(t, err)

	fired := rec.ByType(notify.EventSlotCancelled)[before:]
	require.Len(t, fired, 2)
	recipients := []int64{fired[0].UserID, fired[1].UserID}
	assert.Contains(t, recipients, providerX.ID)
	assert.Contains(t, recipients, studentB.ID)

	// The bucket entry itself survives the cancellation.
	kept, err := e.GetRequest(context.Background(), admin, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusWaiting, kept.Status)
}

func TestCancelAvailableHardDeleteNotifiesBucket(t *testing.T) {
	e, rec := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "10:00")
	parkViaPreference(t, e, studentB)

	off := false
	_, err := e.CancelSlot(context.Background(), providerX, CancelSlotInput{SlotID: slot.ID, Reassign: &off})
	require.NoError(t, err)
	before := len(rec.ByType(notify.EventSlotCancelled))

	res, err := e.CancelSlot(context.Background(), providerX, CancelSlotInput{SlotID: slot.ID})
	require.NoError(t, err)
	require.True(t, res.Removed)

	// The provider deleted their own slot, only the waiter is told.
	fired := rec.ByType(notify.EventSlotCancelled)[before:]
	require.Len(t, fired, 1)
	assert.Equal(t, studentB.ID, fired[0].UserID)
}

func TestCancelAuthorization(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "10:00", "11:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "10:00")

	// Unbound requester.
	_, err := e.CancelSlot(context.Background(), studentB, CancelSlotInput{SlotID: slot.ID})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Foreign provider.
	_, err = e.CancelSlot(context.Background(), providerY, CancelSlotInput{SlotID: slot.ID})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.CancelSlot(context.Background(), admin, CancelSlotInput{SlotID: 4242})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCompleteLifecycle(t *testing.T) {
	e, rec := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "09:00", "10:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "09:00")
	ctx := context.Background()

	// Still in the future at 08:00.
	_, err := e.Complete(ctx, providerX, slot.ID)
	assert.ErrorIs(t, err, ErrValidation)

	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	_, err = e.Complete(ctx, studentB, slot.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	done, err := e.Complete(ctx, studentA, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCompleted, done.Status)

	fired := len(rec.ByType(notify.EventSlotCompleted))
	assert.Equal(t, 2, fired) // provider and requester

	// Completing again conflicts and re-fires nothing.
	_, err = e.Complete(ctx, studentA, slot.ID)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, fired, len(rec.ByType(notify.EventSlotCompleted)))
}

func TestConcurrentExactRequestsSingleWinner(t *testing.T) {
	e, _ := newTestEngine(t)
	slot := mark(t, e, providerX, "2024-05-01", "09:00", "10:00").Slot

	const n = 16
	results := make([]*RequestSlotResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := model.Actor{ID: int64(100 + i), Role: model.RoleRequester, Name: "racer"}
			date, clock := "2024-05-01", "09:00"
			results[i], errs[i] = e.RequestSlot(context.Background(), actor, RequestSlotInput{
				PreferredProviderID: &providerX.ID,
				Date:                &date,
				Time:                &clock,
			})
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	var matched, rejected int
	var winner int64
	for _, res := range results {
		switch res.MatchStatus {
		case MatchStatusMatched:
			matched++
			winner = res.Request.RequesterID
		case MatchStatusRejected:
			rejected++
		default:
			t.Fatalf("unexpected match status %q", res.MatchStatus)
		}
	}
	assert.Equal(t, 1, matched)
	assert.Equal(t, n-1, rejected)

	final, err := e.store.SlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, final.Status)
	require.NotNil(t, final.RequesterID)
	assert.Equal(t, winner, *final.RequesterID)
}

func TestListSlotsScoping(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	booked := mark(t, e, providerX, "2024-05-01", "09:00", "10:00").Slot
	open := mark(t, e, providerX, "2024-05-01", "11:00", "12:00").Slot
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "09:00")

	mine, err := e.ListSlots(ctx, studentA, storage.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, booked.ID, mine[0].ID)

	theirs, err := e.ListSlots(ctx, providerX, storage.SlotFilter{})
	require.NoError(t, err)
	assert.Len(t, theirs, 2)

	all, err := e.ListSlots(ctx, admin, storage.SlotFilter{Status: model.SlotStatusAvailable})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, open.ID, all[0].ID)
}

func TestExpireStaleCancelsPastWaiting(t *testing.T) {
	e, rec := newTestEngine(t)
	parked := exactRequest(t, e, studentA, providerX.ID, "2024-05-02", "09:00")
	fresh := exactRequest(t, e, studentB, providerX.ID, "2024-05-09", "09:00")
	ctx := context.Background()

	expired, err := e.ExpireStale(ctx, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	gone, err := e.GetRequest(ctx, admin, parked.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, gone.Status)

	kept, err := e.GetRequest(ctx, admin, fresh.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusWaiting, kept.Status)

	events := rec.ByType(notify.EventRequestExpired)
	require.Len(t, events, 1)
	assert.Equal(t, studentA.ID, events[0].UserID)
}

// assignDuringSweep assigns the target request between the sweep's
// stale scan and its expiry write, emulating a concurrent operation
// winning the interleave.
type assignDuringSweep struct {
	storage.Store
	target int64
}

func (a *assignDuringSweep) InTx(ctx context.Context, fn func(storage.Store) error) error {
	return a.Store.InTx(ctx, func(tx storage.Store) error {
		return fn(&assignDuringSweep{Store: tx, target: a.target})
	})
}

func (a *assignDuringSweep) StaleWaiting(ctx context.Context, date, clock string) ([]*model.StudentRequest, error) {
	stale, err := a.Store.StaleWaiting(ctx, date, clock)
	if err != nil {
		return nil, err
	}
	req, err := a.Store.RequestByID(ctx, a.target)
	if err != nil {
		return nil, err
	}
	slotID := int64(777)
	req.Status = model.RequestStatusAssigned
	req.AssignedSlotID = &slotID
	if err := a.Store.UpdateRequest(ctx, req, model.RequestStatusWaiting); err != nil {
		return nil, err
	}
	return stale, nil
}

func TestExpireStaleSkipsConcurrentlyAssigned(t *testing.T) {
	e, rec := newTestEngine(t)
	parked := exactRequest(t, e, studentA, providerX.ID, "2024-05-02", "09:00")

	inner := e.store
	e.store = &assignDuringSweep{Store: inner, target: parked.Request.ID}

	expired, err := e.ExpireStale(context.Background(), time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	// The assignment stands, the expiry write lost and was skipped.
	got, err := inner.RequestByID(context.Background(), parked.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusAssigned, got.Status)
	assert.Empty(t, rec.ByType(notify.EventRequestExpired))
}

func TestGetRequestPrivacy(t *testing.T) {
	e, _ := newTestEngine(t)
	parked := exactRequest(t, e, studentA, providerX.ID, "2024-06-10", "14:00")
	ctx := context.Background()

	_, err := e.GetRequest(ctx, studentB, parked.Request.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := e.GetRequest(ctx, studentA, parked.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, parked.Request.ID, got.ID)
}

func TestBookedInvariantHolds(t *testing.T) {
	e, _ := newTestEngine(t)
	mark(t, e, providerX, "2024-05-01", "09:00", "10:00")
	exactRequest(t, e, studentA, providerX.ID, "2024-05-01", "09:00")

	slots, err := e.store.ListSlots(context.Background(), storage.SlotFilter{})
	require.NoError(t, err)
	for _, s := range slots {
		if s.Status == model.SlotStatusBooked {
			assert.NotNil(t, s.RequesterID)
			assert.NotZero(t, s.ProviderID)
		}
		if s.Status == model.SlotStatusAvailable {
			assert.Nil(t, s.RequesterID)
		}
	}
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	e, _ := newTestEngine(t)
	e.dispatcher = failingDispatcher{}

	exactRequest(t, e, studentA, providerX.ID, "2024-06-10", "14:00")
	res := mark(t, e, providerX, "2024-06-10", "14:00", "15:00")
	assert.Equal(t, model.SlotStatusBooked, res.Slot.Status)
}

type failingDispatcher struct{}

func (failingDispatcher) Notify(context.Context, int64, notify.Event) error {
	return errors.New("push transport down")
}
