package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const (
	creatorID   = "creator-1"
	requesterID = "requester-1"
	strangerID  = "stranger-1"
	planID      = "plan-1"
)

type workFixture struct {
	users   *stubUserRepo
	works   *stubWorkRepo
	storage *stubStorage
	idem    *stubIdempotency
	svc     *WorkService
}

func newWorkFixture() *workFixture {
	users := newStubUserRepo(
		newCreator(creatorID, "Artist", newPlan(planID, creatorID, 1500)),
		newCreator(requesterID, "buyer"),
		newCreator(strangerID, "someone"),
	)
	works := newStubWorkRepo(users)
	storage := newStubStorage()
	idem := newStubIdempotency()
	return &workFixture{
		users:   users,
		works:   works,
		storage: storage,
		idem:    idem,
		svc:     NewWorkService(works, users, storage, idem, WorkConfig{}, zerolog.Nop()),
	}
}

func (f *workFixture) request(t *testing.T) *domain.Work {
	t.Helper()
	res, err := f.svc.Create(context.Background(), ports.CreateWorkInput{
		RequesterID: requesterID,
		CreatorID:   creatorID,
		PlanID:      planID,
		Description: "a portrait of my cat",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res.Work
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_Success(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	if w.Status != domain.WorkRequested {
		t.Fatalf("expected requested, got %s", w.Status)
	}
	if w.Number != 1 {
		t.Fatalf("expected number 1, got %d", w.Number)
	}
	if w.Amount != 1500 || w.PaymentURL != "https://pay.test/"+planID {
		t.Fatalf("plan snapshot not taken: amount=%d url=%q", w.Amount, w.PaymentURL)
	}
	if w.Description != "a portrait of my cat" {
		t.Fatalf("unexpected description %q", w.Description)
	}

	ns := f.works.notificationsFor(creatorID)
	if len(ns) != 1 {
		t.Fatalf("expected 1 notification for creator, got %d", len(ns))
	}
	if ns[0].Type != domain.NotificationNewRequest || ns[0].WorkNumber != 1 || ns[0].WorkID != w.ID {
		t.Fatalf("unexpected notification %+v", ns[0])
	}
	if got := f.works.notificationsFor(requesterID); len(got) != 0 {
		t.Fatalf("requester should not be notified of own request, got %d", len(got))
	}
}

func TestCreate_NumbersAreSequential(t *testing.T) {
	f := newWorkFixture()
	for i := int64(1); i <= 3; i++ {
		if w := f.request(t); w.Number != i {
			t.Fatalf("expected number %d, got %d", i, w.Number)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	closed := newCreator("closed", "closed", newPlan("p-closed", "closed", 900))
	closed.Status = domain.UserUnavailable
	hidden := newPlan("p-hidden", creatorID, 900)
	hidden.Hidden = true

	tests := []struct {
		name    string
		in      ports.CreateWorkInput
		wantErr error
	}{
		{"no requester", ports.CreateWorkInput{CreatorID: creatorID, PlanID: planID, Description: "x"}, domain.ErrUnauthenticated},
		{"blank description", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: creatorID, PlanID: planID, Description: "   "}, domain.ErrEmptyDescription},
		{"description too long", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: creatorID, PlanID: planID, Description: strings.Repeat("a", 5001)}, domain.ErrValidation},
		{"unknown creator", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: "ghost", PlanID: planID, Description: "x"}, domain.ErrUserNotFound},
		{"unknown plan", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: creatorID, PlanID: "nope", Description: "x"}, domain.ErrPlanInactive},
		{"plan of another user", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: creatorID, PlanID: "p-closed", Description: "x"}, domain.ErrPlanInactive},
		{"hidden plan", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: creatorID, PlanID: "p-hidden", Description: "x"}, domain.ErrPlanInactive},
		{"creator unavailable", ports.CreateWorkInput{RequesterID: requesterID, CreatorID: "closed", PlanID: "p-closed", Description: "x"}, domain.ErrCreatorUnavailable},
		{"self request", ports.CreateWorkInput{RequesterID: creatorID, CreatorID: creatorID, PlanID: planID, Description: "x"}, domain.ErrSelfRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkFixture()
			creator := f.users.get(creatorID)
			creator.Plans = append(creator.Plans, hidden)
			f.users.byID[creatorID] = creator
			f.users.byID[closed.ID] = cloneUser(closed)

			_, err := f.svc.Create(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(f.works.byID) != 0 {
				t.Fatalf("no work should be stored, got %d", len(f.works.byID))
			}
			if len(f.works.notifications) != 0 {
				t.Fatalf("no notification should be stored, got %d", len(f.works.notifications))
			}
		})
	}
}

func TestCreate_DescriptionLimitCountsCharacters(t *testing.T) {
	f := newWorkFixture()
	in := ports.CreateWorkInput{
		RequesterID: requesterID, CreatorID: creatorID, PlanID: planID,
		Description: strings.Repeat("猫", 5000),
	}

	res, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("5000 multi-byte characters must be accepted: %v", err)
	}
	if res.Work.Description != in.Description {
		t.Fatal("description was altered")
	}

	in.Description = strings.Repeat("猫", 5001)
	if _, err := f.svc.Create(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error past 5000 characters, got %v", err)
	}
}

func TestCreate_PlanChangedDuringRequest(t *testing.T) {
	f := newWorkFixture()
	f.works.createErr = domain.ErrPlanChanged

	_, err := f.svc.Create(context.Background(), ports.CreateWorkInput{
		RequesterID: requesterID, CreatorID: creatorID, PlanID: planID, Description: "x",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestCreate_AmountSnapshotSurvivesPlanEdits(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	profiles := NewProfileService(f.users, f.works, zerolog.Nop())
	if _, err := profiles.UpdatePlan(context.Background(), creatorID, planID, ports.PlanInput{
		Title: "Bigger", Amount: 9900, PaymentURL: "https://pay.test/new",
	}); err != nil {
		t.Fatalf("update plan: %v", err)
	}
	if _, err := profiles.DeletePlan(context.Background(), creatorID, planID); err != nil {
		t.Fatalf("delete plan: %v", err)
	}

	got, err := f.svc.Get(context.Background(), w.ID, requesterID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 1500 || got.PaymentURL != "https://pay.test/"+planID {
		t.Fatalf("snapshot changed: amount=%d url=%q", got.Amount, got.PaymentURL)
	}
}

func TestCreate_IdempotentReplay(t *testing.T) {
	f := newWorkFixture()
	in := ports.CreateWorkInput{
		RequesterID: requesterID, CreatorID: creatorID, PlanID: planID,
		Description: "x", IdempotencyKey: "key-1",
	}

	first, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.AlreadyExisted {
		t.Fatal("first create must not be a replay")
	}

	second, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.AlreadyExisted || second.Work.ID != first.Work.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Work.ID, second)
	}
	if len(f.works.byID) != 1 || len(f.works.notifications) != 1 {
		t.Fatalf("replay must not have side effects: works=%d notifications=%d", len(f.works.byID), len(f.works.notifications))
	}

	// Keys are scoped per requester.
	in.RequesterID = strangerID
	third, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("third create: %v", err)
	}
	if third.AlreadyExisted || third.Work.ID == first.Work.ID {
		t.Fatal("same key from another requester must create a new work")
	}
}

func TestCreate_IdempotencyInFlight(t *testing.T) {
	f := newWorkFixture()
	f.idem.entries[requesterID+":busy"] = idemPending

	_, err := f.svc.Create(context.Background(), ports.CreateWorkInput{
		RequesterID: requesterID, CreatorID: creatorID, PlanID: planID,
		Description: "x", IdempotencyKey: "busy",
	})
	if !errors.Is(err, domain.ErrIdempotencyInFlight) {
		t.Fatalf("expected ErrIdempotencyInFlight, got %v", err)
	}
	if len(f.works.byID) != 0 {
		t.Fatal("no work should be created while the key is in flight")
	}
}

func TestCreate_FailureReleasesIdempotencyKey(t *testing.T) {
	f := newWorkFixture()
	in := ports.CreateWorkInput{
		RequesterID: requesterID, CreatorID: creatorID, PlanID: "missing",
		Description: "x", IdempotencyKey: "retry-me",
	}

	if _, err := f.svc.Create(context.Background(), in); !errors.Is(err, domain.ErrPlanInactive) {
		t.Fatalf("expected ErrPlanInactive, got %v", err)
	}
	if f.idem.released != 1 {
		t.Fatalf("expected key to be released once, got %d", f.idem.released)
	}

	in.PlanID = planID
	res, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.AlreadyExisted {
		t.Fatal("retry after failure must create the work")
	}
}

func TestCreate_IdempotencyStoreDownStillCreates(t *testing.T) {
	f := newWorkFixture()
	f.idem.reserveErr = errors.New("redis: connection refused")

	res, err := f.svc.Create(context.Background(), ports.CreateWorkInput{
		RequesterID: requesterID, CreatorID: creatorID, PlanID: planID,
		Description: "x", IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Work == nil || res.AlreadyExisted {
		t.Fatalf("unexpected result %+v", res)
	}
}

// ---------------------------------------------------------------------------
// Get and list
// ---------------------------------------------------------------------------

func TestGet_OnlyParties(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	for _, id := range []string{creatorID, requesterID} {
		if _, err := f.svc.Get(context.Background(), w.ID, id); err != nil {
			t.Fatalf("party %s: %v", id, err)
		}
	}
	if _, err := f.svc.Get(context.Background(), w.ID, strangerID); !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("expected ErrWorkNotFound for stranger, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), w.ID, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestList_AttachesCounterpart(t *testing.T) {
	f := newWorkFixture()
	f.request(t)
	f.request(t)

	received, err := f.svc.ListReceived(context.Background(), creatorID)
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 received works, got %d", len(received))
	}
	if received[0].Work.Number != 2 {
		t.Fatalf("expected newest first, got number %d", received[0].Work.Number)
	}
	if received[0].Counterpart.Handle != "buyer" {
		t.Fatalf("expected requester as counterpart, got %+v", received[0].Counterpart)
	}

	sent, err := f.svc.ListSent(context.Background(), requesterID)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 2 || sent[0].Counterpart.Handle != "Artist" {
		t.Fatalf("unexpected sent list %+v", sent)
	}

	none, err := f.svc.ListReceived(context.Background(), requesterID)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no works, got %d", len(none))
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func TestTransitions_HappyPath(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	ctx := context.Background()

	delivered, err := f.svc.Deliver(ctx, w.ID, creatorID, "deliveries/x/1-cat.png")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Status != domain.WorkDelivered || delivered.DeliveredAt == nil || delivered.FileRef == "" {
		t.Fatalf("unexpected delivered work %+v", delivered)
	}

	paid, err := f.svc.ConfirmPayment(ctx, w.ID, requesterID)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if paid.Status != domain.WorkPaid || paid.PaidAt == nil {
		t.Fatalf("unexpected paid work %+v", paid)
	}

	toRequester := f.works.notificationsFor(requesterID)
	if len(toRequester) != 1 || toRequester[0].Type != domain.NotificationStatusChanged {
		t.Fatalf("requester should get one delivery notification, got %d", len(toRequester))
	}
	toCreator := f.works.notificationsFor(creatorID)
	if len(toCreator) != 2 {
		t.Fatalf("creator should get request and payment notifications, got %d", len(toCreator))
	}
	if toCreator[1].Message != "Payment for the delivered work was confirmed." {
		t.Fatalf("unexpected payment message %q", toCreator[1].Message)
	}
}

func TestTransitions_Reject(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	rejected, err := f.svc.Reject(context.Background(), w.ID, creatorID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.WorkRejected || rejected.RejectedAt == nil {
		t.Fatalf("unexpected rejected work %+v", rejected)
	}
	ns := f.works.notificationsFor(requesterID)
	if len(ns) != 1 || ns[0].Message != "Your request was rejected." {
		t.Fatalf("requester should be told about the rejection, got %+v", ns)
	}
}

// TestTransitions_Closure walks every operation from every status and checks
// that only the three lifecycle edges succeed.
func TestTransitions_Closure(t *testing.T) {
	type op struct {
		name  string
		actor string
		run   func(s *WorkService, id, actor string) (*domain.Work, error)
		to    domain.WorkStatus
	}
	ops := []op{
		{"deliver", creatorID, func(s *WorkService, id, a string) (*domain.Work, error) {
			return s.Deliver(context.Background(), id, a, "deliveries/k")
		}, domain.WorkDelivered},
		{"reject", creatorID, func(s *WorkService, id, a string) (*domain.Work, error) {
			return s.Reject(context.Background(), id, a)
		}, domain.WorkRejected},
		{"confirm payment", requesterID, func(s *WorkService, id, a string) (*domain.Work, error) {
			return s.ConfirmPayment(context.Background(), id, a)
		}, domain.WorkPaid},
	}

	for _, from := range domain.AllWorkStatuses {
		for _, o := range ops {
			t.Run(string(from)+"/"+o.name, func(t *testing.T) {
				f := newWorkFixture()
				w := f.request(t)
				f.works.forceStatus(w.ID, from)
				before := len(f.works.notifications)

				got, err := o.run(f.svc, w.ID, o.actor)
				if from.CanTransitionTo(o.to) {
					if err != nil {
						t.Fatalf("expected success, got %v", err)
					}
					if got.Status != o.to {
						t.Fatalf("expected %s, got %s", o.to, got.Status)
					}
					return
				}
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if st := f.works.get(w.ID).Status; st != from {
					t.Fatalf("failed transition changed status to %s", st)
				}
				if len(f.works.notifications) != before {
					t.Fatal("failed transition must not emit a notification")
				}
			})
		}
	}
}

func TestTransitions_TerminalWorkExplainsItCannotChange(t *testing.T) {
	for _, st := range []domain.WorkStatus{domain.WorkRejected, domain.WorkPaid} {
		t.Run(string(st), func(t *testing.T) {
			f := newWorkFixture()
			w := f.request(t)
			f.works.forceStatus(w.ID, st)

			_, err := f.svc.Reject(context.Background(), w.ID, creatorID)
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			want := "work is " + string(st) + " and can no longer change"
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected %q in %q", want, err.Error())
			}
		})
	}

	// A non-terminal status keeps the from/to wording.
	f := newWorkFixture()
	w := f.request(t)
	f.works.forceStatus(w.ID, domain.WorkDelivered)
	_, err := f.svc.Reject(context.Background(), w.ID, creatorID)
	if err == nil || !strings.Contains(err.Error(), "from delivered to rejected") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestTransitions_WrongActorIsNotFound(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (*domain.Work, error)
	}{
		{"requester delivers", func() (*domain.Work, error) { return f.svc.Deliver(ctx, w.ID, requesterID, "k") }},
		{"requester rejects", func() (*domain.Work, error) { return f.svc.Reject(ctx, w.ID, requesterID) }},
		{"stranger rejects", func() (*domain.Work, error) { return f.svc.Reject(ctx, w.ID, strangerID) }},
		{"creator confirms payment", func() (*domain.Work, error) { return f.svc.ConfirmPayment(ctx, w.ID, creatorID) }},
		{"unknown work", func() (*domain.Work, error) { return f.svc.Reject(ctx, "nope", creatorID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.run(); !errors.Is(err, domain.ErrWorkNotFound) {
				t.Fatalf("expected ErrWorkNotFound, got %v", err)
			}
		})
	}
	if st := f.works.get(w.ID).Status; st != domain.WorkRequested {
		t.Fatalf("work must stay requested, got %s", st)
	}
	if f.works.transitions != 0 {
		t.Fatalf("no transition should be attempted, got %d", f.works.transitions)
	}
}

func TestTransitions_Unauthenticated(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	if _, err := f.svc.Reject(context.Background(), w.ID, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestDeliver_RequiresFileRef(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	if _, err := f.svc.Deliver(context.Background(), w.ID, creatorID, " "); !errors.Is(err, domain.ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
}

func TestTransitions_LostRace(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	f.works.beforeTransition = func() { f.works.forceStatus(w.ID, domain.WorkRejected) }

	_, err := f.svc.Deliver(context.Background(), w.ID, creatorID, "k")
	if !errors.Is(err, domain.ErrTransitionConflict) {
		t.Fatalf("expected ErrTransitionConflict, got %v", err)
	}
	if st := f.works.get(w.ID).Status; st != domain.WorkRejected {
		t.Fatalf("concurrent winner must be kept, got %s", st)
	}
}

func TestTransitions_StoreFailureIsWrapped(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	boom := errors.New("connection reset")
	f.works.transitionErr = boom

	_, err := f.svc.Reject(context.Background(), w.ID, creatorID)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "rejected work:") {
		t.Fatalf("unexpected error message %q", err.Error())
	}
}

func TestTransitions_ConcurrentSingleWinner(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.Deliver(context.Background(), w.ID, creatorID, "k")
			} else {
				_, err = f.svc.Reject(context.Background(), w.ID, creatorID)
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrTransitionConflict) && !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("unexpected error %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
	if f.works.transitions != 1 {
		t.Fatalf("expected one stored transition, got %d", f.works.transitions)
	}
	if n := len(f.works.notificationsFor(requesterID)); n != 1 {
		t.Fatalf("expected one notification for the winner, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// Deliverables
// ---------------------------------------------------------------------------

func uploadInput(workID, actorID string) ports.UploadDeliverableInput {
	body := "png-bytes"
	return ports.UploadDeliverableInput{
		WorkID:      workID,
		ActorID:     actorID,
		FileName:    "../final cat.png",
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func TestUploadDeliverable_Success(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	res, err := f.svc.UploadDeliverable(context.Background(), uploadInput(w.ID, creatorID))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Work.Status != domain.WorkDelivered {
		t.Fatalf("expected delivered, got %s", res.Work.Status)
	}
	if !strings.HasPrefix(res.Work.FileRef, "deliveries/"+w.ID+"/") || !strings.HasSuffix(res.Work.FileRef, "-final_cat.png") {
		t.Fatalf("unexpected file ref %q", res.Work.FileRef)
	}
	if string(f.storage.objects[res.Work.FileRef]) != "png-bytes" {
		t.Fatal("object was not stored under the file ref")
	}
	if res.Link.URL == "" || !res.Link.ExpiresAt.After(time.Now().Add(5*time.Hour)) {
		t.Fatalf("expected a long-lived delivery link, got %+v", res.Link)
	}
}

func TestUploadDeliverable_StorageFailureLeavesWorkUntouched(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	f.storage.putErr = errors.Join(domain.ErrStorageUnavailable, errors.New("bucket offline"))

	_, err := f.svc.UploadDeliverable(context.Background(), uploadInput(w.ID, creatorID))
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if st := f.works.get(w.ID).Status; st != domain.WorkRequested {
		t.Fatalf("work must stay requested, got %s", st)
	}
	if f.works.transitions != 0 || len(f.works.notificationsFor(requesterID)) != 0 {
		t.Fatal("no transition or notification expected after a failed upload")
	}
}

func TestUploadDeliverable_RemovesOrphanOnConflict(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	f.works.beforeTransition = func() { f.works.forceStatus(w.ID, domain.WorkRejected) }

	_, err := f.svc.UploadDeliverable(context.Background(), uploadInput(w.ID, creatorID))
	if !errors.Is(err, domain.ErrTransitionConflict) {
		t.Fatalf("expected ErrTransitionConflict, got %v", err)
	}
	if f.storage.count() != 0 || len(f.storage.removed) != 1 {
		t.Fatalf("orphaned object must be removed: objects=%d removed=%d", f.storage.count(), len(f.storage.removed))
	}
}

func TestUploadDeliverable_SigningFailureStillDelivers(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	f.storage.signErr = domain.ErrStorageUnavailable

	res, err := f.svc.UploadDeliverable(context.Background(), uploadInput(w.ID, creatorID))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Work.Status != domain.WorkDelivered || res.Link.URL != "" {
		t.Fatalf("expected delivery without link, got %+v", res)
	}
}

func TestUploadDeliverable_Rejections(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)

	empty := uploadInput(w.ID, creatorID)
	empty.Size = 0
	if _, err := f.svc.UploadDeliverable(context.Background(), empty); !errors.Is(err, domain.ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
	if _, err := f.svc.UploadDeliverable(context.Background(), uploadInput(w.ID, requesterID)); !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("expected ErrWorkNotFound, got %v", err)
	}
	if f.storage.count() != 0 {
		t.Fatal("nothing should be uploaded for a rejected request")
	}
}

func TestRequestUploadURL(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	ctx := context.Background()

	ticket, err := f.svc.RequestUploadURL(ctx, w.ID, creatorID, "../final cat.png")
	if err != nil {
		t.Fatalf("upload url: %v", err)
	}
	if !strings.HasPrefix(ticket.Key, "deliveries/"+w.ID+"/") || !strings.HasSuffix(ticket.Key, "-final_cat.png") {
		t.Fatalf("unexpected key %q", ticket.Key)
	}
	if !strings.Contains(ticket.URL, ticket.Key) || !strings.HasSuffix(ticket.URL, "ttl=3600") {
		t.Fatalf("unexpected upload url %q", ticket.URL)
	}
	if st := f.works.get(w.ID).Status; st != domain.WorkRequested || f.works.transitions != 0 {
		t.Fatal("issuing an upload url must not change the work")
	}

	if _, err := f.svc.RequestUploadURL(ctx, w.ID, requesterID, "x.png"); !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("requester: expected ErrWorkNotFound, got %v", err)
	}
	f.works.forceStatus(w.ID, domain.WorkRejected)
	if _, err := f.svc.RequestUploadURL(ctx, w.ID, creatorID, "x.png"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("rejected work: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteUpload(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	ctx := context.Background()

	ticket, err := f.svc.RequestUploadURL(ctx, w.ID, creatorID, "cat.png")
	if err != nil {
		t.Fatalf("upload url: %v", err)
	}

	if _, err := f.svc.CompleteUpload(ctx, w.ID, creatorID, ticket.Key); !errors.Is(err, domain.ErrMissingFile) {
		t.Fatalf("before upload: expected ErrMissingFile, got %v", err)
	}

	// The client PUTs to the presigned URL.
	if err := f.storage.Put(ctx, ticket.Key, strings.NewReader("png"), 3, "image/png"); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.CompleteUpload(ctx, w.ID, creatorID, ticket.Key)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Work.Status != domain.WorkDelivered || res.Work.FileRef != ticket.Key {
		t.Fatalf("unexpected work %+v", res.Work)
	}
	if res.Link.URL == "" {
		t.Fatal("expected a delivery link")
	}
	if ns := f.works.notificationsFor(requesterID); len(ns) != 1 {
		t.Fatalf("requester should be notified once, got %d", len(ns))
	}

	if _, err := f.svc.CompleteUpload(ctx, w.ID, creatorID, ticket.Key); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second completion: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteUpload_RejectsForeignKeys(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	other := f.request(t)
	ctx := context.Background()

	keys := []string{
		"deliveries/" + other.ID + "/1-cat.png",
		"deliveries/" + w.ID + "/",
		"deliveries/" + w.ID + "/nested/cat.png",
		"deliveries/" + w.ID + "/../" + other.ID + "/cat.png",
		"elsewhere/cat.png",
	}
	for _, key := range keys {
		_ = f.storage.Put(ctx, key, strings.NewReader("x"), 1, "")
		if _, err := f.svc.CompleteUpload(ctx, w.ID, creatorID, key); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%q: expected ErrValidation, got %v", key, err)
		}
	}
	if st := f.works.get(w.ID).Status; st != domain.WorkRequested {
		t.Fatalf("work must stay requested, got %s", st)
	}
	if _, err := f.svc.CompleteUpload(ctx, w.ID, requesterID, "deliveries/"+w.ID+"/1-cat.png"); !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("requester: expected ErrWorkNotFound, got %v", err)
	}
}

func TestGetDeliverable(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	ctx := context.Background()

	if _, err := f.svc.GetDeliverable(ctx, w.ID, requesterID); !errors.Is(err, domain.ErrDeliverableUnavailable) {
		t.Fatalf("expected ErrDeliverableUnavailable before delivery, got %v", err)
	}
	if _, err := f.svc.UploadDeliverable(ctx, uploadInput(w.ID, creatorID)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	for _, id := range []string{requesterID, creatorID} {
		link, err := f.svc.GetDeliverable(ctx, w.ID, id)
		if err != nil {
			t.Fatalf("party %s: %v", id, err)
		}
		if link.URL == "" || link.ExpiresAt.After(time.Now().Add(11*time.Minute)) {
			t.Fatalf("expected a short-lived link, got %+v", link)
		}
	}
	if _, err := f.svc.GetDeliverable(ctx, w.ID, strangerID); !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("expected ErrWorkNotFound for stranger, got %v", err)
	}

	if _, err := f.svc.ConfirmPayment(ctx, w.ID, requesterID); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if _, err := f.svc.GetDeliverable(ctx, w.ID, requesterID); err != nil {
		t.Fatalf("paid work keeps its deliverable: %v", err)
	}
}

func TestGetDeliverable_RejectedWork(t *testing.T) {
	f := newWorkFixture()
	w := f.request(t)
	if _, err := f.svc.Reject(context.Background(), w.ID, creatorID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.svc.GetDeliverable(context.Background(), w.ID, requesterID); !errors.Is(err, domain.ErrDeliverableUnavailable) {
		t.Fatalf("expected ErrDeliverableUnavailable, got %v", err)
	}
}

func TestDeliverableKey(t *testing.T) {
	at := time.Unix(0, 42)
	tests := []struct {
		name string
		want string
	}{
		{"cat.png", "deliveries/w1/42-cat.png"},
		{"../../etc/passwd", "deliveries/w1/42-passwd"},
		{`C:\Users\me\art work.psd`, "deliveries/w1/42-art_work.psd"},
		{"日本.png", "deliveries/w1/42-__.png"},
		{"", "deliveries/w1/42-deliverable"},
		{"...", "deliveries/w1/42-deliverable"},
	}
	for _, tt := range tests {
		if got := deliverableKey("w1", tt.name, at); got != tt.want {
			t.Errorf("deliverableKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
