package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"incident_portal_backend/internal/booking/domain"
	"incident_portal_backend/internal/booking/repository"
	dispatchsvc "incident_portal_backend/internal/dispatch/service"
	appevents "incident_portal_backend/internal/events"
	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/logger"
)

type fakeBookingConfig struct{}

func (fakeBookingConfig) GetMaxPatientAttempts() int { return 3 }

// fakeStore holds a single workflow and records every mutation.
type fakeStore struct {
	workflow     repository.Workflow
	workerPhone  string
	workerName   string
	centerPhone  string
	centerName   string
	appointments []repository.Appointment
	failReasons  []string
	incrementErr error
}

func (f *fakeStore) Create(_ context.Context, params repository.CreateWorkflowParams) (repository.Workflow, error) {
	f.workflow = repository.Workflow{
		ID:              1,
		IncidentID:      params.IncidentID,
		MedicalCenterID: params.MedicalCenterID,
		WorkerID:        params.WorkerID,
		Urgency:         params.Urgency,
		Status:          domain.StatusPending,
	}
	return f.workflow, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (repository.Workflow, error) {
	if id != f.workflow.ID {
		return repository.Workflow{}, repository.ErrWorkflowNotFound
	}
	return f.workflow, nil
}

func (f *fakeStore) GetContext(_ context.Context, id int64) (repository.WorkflowContext, error) {
	if id != f.workflow.ID {
		return repository.WorkflowContext{}, repository.ErrWorkflowNotFound
	}
	return repository.WorkflowContext{
		Workflow:    f.workflow,
		WorkerName:  f.workerName,
		WorkerPhone: f.workerPhone,
		CenterName:  f.centerName,
		CenterPhone: f.centerPhone,
	}, nil
}

func (f *fakeStore) FindByCurrentCallID(_ context.Context, callID string) (repository.Workflow, error) {
	if f.workflow.CurrentCallID != nil && *f.workflow.CurrentCallID == callID {
		return f.workflow, nil
	}
	return repository.Workflow{}, repository.ErrWorkflowNotFound
}

func (f *fakeStore) ListAwaitingPatientRetry(ctx context.Context) ([]repository.WorkflowContext, error) {
	if f.workflow.Status != domain.StatusAwaitingPatientRetry {
		return nil, nil
	}
	wc, err := f.GetContext(ctx, f.workflow.ID)
	if err != nil {
		return nil, err
	}
	return []repository.WorkflowContext{wc}, nil
}

func (f *fakeStore) ClearCurrentCall(_ context.Context, _ int64, callID string) error {
	if f.workflow.CurrentCallID != nil && *f.workflow.CurrentCallID == callID {
		f.workflow.CurrentCallID = nil
	}
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ int64, status domain.Status) error {
	f.workflow.Status = status
	return nil
}

func (f *fakeStore) StoreAvailableTimes(_ context.Context, _ int64, slots []domain.TimeSlot) error {
	f.workflow.AvailableTimes = slots
	return nil
}

func (f *fakeStore) SetPatientPreference(_ context.Context, _ int64, slot *domain.TimeSlot, doctor string) error {
	f.workflow.ConfirmedSlot = slot
	if doctor != "" {
		f.workflow.PatientPreferredDoctor = &doctor
	}
	return nil
}

func (f *fakeStore) IncrementPatientAttempts(_ context.Context, _ int64) (int, error) {
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	f.workflow.PatientCallAttempts++
	return f.workflow.PatientCallAttempts, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, _ int64, reason string) error {
	f.workflow.Status = domain.StatusFailed
	f.workflow.FailureReason = &reason
	f.workflow.CurrentCallID = nil
	f.failReasons = append(f.failReasons, reason)
	return nil
}

func (f *fakeStore) MarkCompleted(_ context.Context, _ int64) error {
	f.workflow.Status = domain.StatusCompleted
	f.workflow.CurrentCallID = nil
	return nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, w repository.Workflow, slot domain.TimeSlot) (repository.Appointment, error) {
	a := repository.Appointment{ID: int64(len(f.appointments) + 1), WorkflowID: w.ID, SlotDescription: slot.Display()}
	f.appointments = append(f.appointments, a)
	return a, nil
}

// fakeDispatcher mimics the real dispatcher's workflow side effects: it
// claims the workflow into its calling state and attaches the call id.
type fakeDispatcher struct {
	store    *fakeStore
	err      error
	nextCall string
	got      []dispatchsvc.DispatchRequest
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatchsvc.DispatchRequest) (dispatchsvc.DispatchResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return dispatchsvc.DispatchResult{}, f.err
	}

	switch req.TaskType {
	case dispatchsvc.TaskBookingGetTimes:
		f.store.workflow.Status = domain.StatusCallingMedicalCenter
	case dispatchsvc.TaskBookingPatientConfirm:
		f.store.workflow.Status = domain.StatusCallingPatient
	case dispatchsvc.TaskBookingFinalConfirm:
		f.store.workflow.Status = domain.StatusConfirmingBooking
	}
	callID := f.nextCall
	f.store.workflow.CurrentCallID = &callID
	return dispatchsvc.DispatchResult{ProviderCallID: callID}, nil
}

type fakeCallLog struct {
	completed []string
	outcomes  []string
}

func (f *fakeCallLog) CompleteCall(_ context.Context, callID, outcome string) error {
	f.completed = append(f.completed, callID)
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakeCallLog) CompleteTaskByCallID(context.Context, string) error { return nil }

type fakeBus struct {
	published []appevents.Event
}

func (f *fakeBus) Publish(_ context.Context, event appevents.Event) {
	f.published = append(f.published, event)
}

func (f *fakeBus) PublishSync(_ context.Context, event appevents.Event) error {
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) Subscribe(string, appevents.Handler) {}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func newFixture(status domain.Status) (*Service, *fakeStore, *fakeDispatcher, *fakeCallLog, *fakeBus) {
	store := &fakeStore{
		workflow: repository.Workflow{
			ID:              1,
			IncidentID:      10,
			MedicalCenterID: 20,
			WorkerID:        30,
			Status:          status,
		},
		workerPhone: "+61421234567",
		workerName:  "John Smith",
		centerPhone: "+61299998888",
		centerName:  "City Medical",
	}
	dispatcher := &fakeDispatcher{store: store, nextCall: "call_next"}
	calls := &fakeCallLog{}
	bus := &fakeBus{}
	svc := New(store, dispatcher, calls, fakeBookingConfig{}, bus, logger.New("test"))
	return svc, store, dispatcher, calls, bus
}

func TestStartDispatchesMedicalCenterLeg(t *testing.T) {
	svc, store, dispatcher, _, _ := newFixture(domain.StatusPending)

	res, err := svc.Start(context.Background(), StartParams{
		IncidentID:      10,
		MedicalCenterID: 20,
		WorkerID:        30,
		Urgency:         "urgent",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.CallID != "call_next" {
		t.Fatalf("call id = %q", res.CallID)
	}
	if len(dispatcher.got) != 1 || dispatcher.got[0].TaskType != dispatchsvc.TaskBookingGetTimes {
		t.Fatalf("dispatched = %+v", dispatcher.got)
	}
	if dispatcher.got[0].TargetPhone != "+61299998888" {
		t.Fatalf("target = %q, want the medical center", dispatcher.got[0].TargetPhone)
	}
	if store.workflow.Status != domain.StatusCallingMedicalCenter {
		t.Fatalf("status = %s", store.workflow.Status)
	}
}

func TestRetryPatientCallIncrementsAttempts(t *testing.T) {
	svc, store, dispatcher, _, _ := newFixture(domain.StatusAwaitingPatientRetry)
	store.workflow.PatientCallAttempts = 2
	store.workflow.AvailableTimes = []domain.TimeSlot{{Date: "Monday", Time: "9:00 AM"}}

	wc, _ := store.GetContext(context.Background(), 1)
	_, err := svc.RetryPatientCall(context.Background(), wc, "ai_booking_agent_retry")
	if err != nil {
		t.Fatalf("RetryPatientCall: %v", err)
	}

	if store.workflow.PatientCallAttempts != 3 {
		t.Fatalf("attempts = %d, want 3", store.workflow.PatientCallAttempts)
	}
	req := dispatcher.got[0]
	if req.TaskType != dispatchsvc.TaskBookingPatientConfirm {
		t.Fatalf("task type = %s", req.TaskType)
	}
	if req.Variables["attempt_number"] != "3" {
		t.Fatalf("attempt tag = %q", req.Variables["attempt_number"])
	}
	if len(req.Slots) != 1 {
		t.Fatalf("slots = %+v", req.Slots)
	}
}

func TestRetryPatientCallRequiresRecordedAttempt(t *testing.T) {
	svc, store, dispatcher, _, _ := newFixture(domain.StatusAwaitingPatientRetry)
	store.workflow.PatientCallAttempts = 2
	store.incrementErr = errors.New("update booking_workflows: connection reset")

	wc, _ := store.GetContext(context.Background(), 1)
	_, err := svc.RetryPatientCall(context.Background(), wc, "scheduler")
	if err == nil {
		t.Fatal("expected increment failure to surface")
	}
	if len(dispatcher.got) != 0 {
		t.Fatal("no call may be placed when the attempt cannot be counted")
	}
	if store.workflow.PatientCallAttempts != 2 {
		t.Fatalf("attempts = %d, want 2 untouched", store.workflow.PatientCallAttempts)
	}
}

func TestRetryPatientCallFailsWorkflowWithoutPhone(t *testing.T) {
	svc, store, dispatcher, _, bus := newFixture(domain.StatusAwaitingPatientRetry)
	store.workerPhone = ""

	wc, _ := store.GetContext(context.Background(), 1)
	_, err := svc.RetryPatientCall(context.Background(), wc, "scheduler")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.workflow.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", store.workflow.Status)
	}
	if len(dispatcher.got) != 0 {
		t.Fatal("no call should be dispatched without a phone number")
	}
	if len(bus.published) != 1 {
		t.Fatalf("events = %d", len(bus.published))
	}
}

func TestRetryPatientCallExhaustedAttempts(t *testing.T) {
	svc, store, dispatcher, _, _ := newFixture(domain.StatusAwaitingPatientRetry)
	store.workflow.PatientCallAttempts = 3

	wc, _ := store.GetContext(context.Background(), 1)
	_, err := svc.RetryPatientCall(context.Background(), wc, "scheduler")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.workflow.Status != domain.StatusFailed {
		t.Fatalf("status = %s", store.workflow.Status)
	}
	if store.workflow.FailureReason == nil || !strings.Contains(*store.workflow.FailureReason, "unreachable after 3 attempts") {
		t.Fatalf("reason = %v", store.workflow.FailureReason)
	}
	if len(dispatcher.got) != 0 {
		t.Fatal("no call should be dispatched past the attempt limit")
	}
}

func TestHandleCallCompletedStaleCallIsNoOp(t *testing.T) {
	svc, store, _, calls, bus := newFixture(domain.StatusCallingPatient)
	store.workflow.CurrentCallID = strPtr("call_current")

	id := int64(1)
	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:     "call_old",
		WorkflowID: &id,
		Outcome:    OutcomeCompleted,
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.Status != domain.StatusCallingPatient {
		t.Fatalf("stale webhook mutated status to %s", store.workflow.Status)
	}
	if store.workflow.CurrentCallID == nil || *store.workflow.CurrentCallID != "call_current" {
		t.Fatal("stale webhook released the current call")
	}
	if len(calls.completed) != 0 || len(bus.published) != 0 {
		t.Fatal("stale webhook should have no side effects")
	}
}

func TestHandleCallCompletedCenterLegStoresTimes(t *testing.T) {
	svc, store, _, calls, _ := newFixture(domain.StatusCallingMedicalCenter)
	store.workflow.CurrentCallID = strPtr("call_mc")

	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:  "call_mc",
		Outcome: OutcomeCompleted,
		AvailableTimes: []domain.TimeSlot{
			{Date: "Monday", Time: "9:00 AM", Doctor: "Dr Chen"},
			{Date: "Tuesday", Time: "2:30 PM"},
		},
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.Status != domain.StatusAwaitingPatientRetry {
		t.Fatalf("status = %s", store.workflow.Status)
	}
	if len(store.workflow.AvailableTimes) != 2 {
		t.Fatalf("times = %+v", store.workflow.AvailableTimes)
	}
	if store.workflow.CurrentCallID != nil {
		t.Fatal("current call should be released")
	}
	if len(calls.completed) != 1 || calls.completed[0] != "call_mc" {
		t.Fatalf("call history = %v", calls.completed)
	}
}

func TestHandleCallCompletedCenterLegNoTimesFails(t *testing.T) {
	svc, store, _, _, bus := newFixture(domain.StatusCallingMedicalCenter)
	store.workflow.CurrentCallID = strPtr("call_mc")

	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:  "call_mc",
		Outcome: OutcomeCompleted,
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.Status != domain.StatusFailed {
		t.Fatalf("status = %s", store.workflow.Status)
	}
	if len(bus.published) != 1 {
		t.Fatalf("events = %d", len(bus.published))
	}
	if _, ok := bus.published[0].(appevents.WorkflowFailed); !ok {
		t.Fatalf("event type = %T", bus.published[0])
	}
}

func TestHandleCallCompletedPatientChoseSlot(t *testing.T) {
	svc, store, dispatcher, _, _ := newFixture(domain.StatusCallingPatient)
	store.workflow.CurrentCallID = strPtr("call_pt")
	store.workflow.AvailableTimes = []domain.TimeSlot{
		{Date: "Monday", Time: "9:00 AM", Doctor: "Dr Chen"},
		{Date: "Tuesday", Time: "2:30 PM"},
	}

	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:          "call_pt",
		Outcome:         OutcomeCompleted,
		ChosenSlotIndex: intPtr(2),
		PreferredDoctor: "Dr Chen",
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.ConfirmedSlot == nil || store.workflow.ConfirmedSlot.Date != "Tuesday" {
		t.Fatalf("confirmed slot = %+v", store.workflow.ConfirmedSlot)
	}
	if len(dispatcher.got) != 1 || dispatcher.got[0].TaskType != dispatchsvc.TaskBookingFinalConfirm {
		t.Fatalf("dispatched = %+v", dispatcher.got)
	}
	if dispatcher.got[0].TargetPhone != "+61299998888" {
		t.Fatal("final confirmation must go to the medical center")
	}
	if store.workflow.Status != domain.StatusConfirmingBooking {
		t.Fatalf("status = %s", store.workflow.Status)
	}
}

func TestHandleCallCompletedPatientNoAnswerReturnsToRetryPool(t *testing.T) {
	svc, store, dispatcher, _, _ := newFixture(domain.StatusCallingPatient)
	store.workflow.CurrentCallID = strPtr("call_pt")
	store.workflow.PatientCallAttempts = 1

	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:  "call_pt",
		Outcome: OutcomeNoAnswer,
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.Status != domain.StatusAwaitingPatientRetry {
		t.Fatalf("status = %s", store.workflow.Status)
	}
	if len(dispatcher.got) != 0 {
		t.Fatal("no immediate redial; the scheduler owns retries")
	}
}

func TestHandleCallCompletedPatientNoAnswerAtLimitFails(t *testing.T) {
	svc, store, _, _, _ := newFixture(domain.StatusCallingPatient)
	store.workflow.CurrentCallID = strPtr("call_pt")
	store.workflow.PatientCallAttempts = 3

	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:  "call_pt",
		Outcome: OutcomeNoAnswer,
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}
	if store.workflow.Status != domain.StatusFailed {
		t.Fatalf("status = %s", store.workflow.Status)
	}
}

func TestHandleCallCompletedConfirmLegCompletes(t *testing.T) {
	svc, store, _, _, bus := newFixture(domain.StatusConfirmingBooking)
	store.workflow.CurrentCallID = strPtr("call_fc")
	store.workflow.ConfirmedSlot = &domain.TimeSlot{Date: "Tuesday", Time: "2:30 PM"}

	confirmed := true
	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:          "call_fc",
		Outcome:         OutcomeCompleted,
		CenterConfirmed: &confirmed,
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", store.workflow.Status)
	}
	if len(store.appointments) != 1 {
		t.Fatalf("appointments = %d", len(store.appointments))
	}
	if len(bus.published) != 1 {
		t.Fatalf("events = %d", len(bus.published))
	}
	evt, ok := bus.published[0].(appevents.WorkflowCompleted)
	if !ok {
		t.Fatalf("event type = %T", bus.published[0])
	}
	if !strings.Contains(evt.ConfirmedSlot, "Tuesday") {
		t.Fatalf("slot = %q", evt.ConfirmedSlot)
	}
}

func TestHandleCallCompletedConfirmLegRejected(t *testing.T) {
	svc, store, _, _, bus := newFixture(domain.StatusConfirmingBooking)
	store.workflow.CurrentCallID = strPtr("call_fc")

	confirmed := false
	err := svc.HandleCallCompleted(context.Background(), CallCompletedParams{
		CallID:          "call_fc",
		Outcome:         OutcomeCompleted,
		CenterConfirmed: &confirmed,
		FailureReason:   "no availability for that doctor",
	})
	if err != nil {
		t.Fatalf("HandleCallCompleted: %v", err)
	}

	if store.workflow.Status != domain.StatusFailed {
		t.Fatalf("status = %s", store.workflow.Status)
	}
	if store.workflow.FailureReason == nil || *store.workflow.FailureReason != "no availability for that doctor" {
		t.Fatalf("reason = %v", store.workflow.FailureReason)
	}
	if len(store.appointments) != 0 {
		t.Fatal("no appointment should exist for a rejected booking")
	}
	if _, ok := bus.published[0].(appevents.WorkflowFailed); !ok {
		t.Fatalf("event type = %T", bus.published[0])
	}
}

func TestContinueUnknownWorkflow(t *testing.T) {
	svc, _, _, _, _ := newFixture(domain.StatusPending)

	_, err := svc.Continue(context.Background(), 99, dispatchsvc.TaskBookingGetTimes)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContinueRejectsUnknownTaskType(t *testing.T) {
	svc, _, _, _, _ := newFixture(domain.StatusPending)

	_, err := svc.Continue(context.Background(), 1, "survey")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
