package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	appevents "incident_portal_backend/internal/events"
	"incident_portal_backend/internal/dispatch/repository"
	"incident_portal_backend/internal/telephony"
	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
)

type fakeTaskStore struct {
	nextID      int64
	created     []repository.VoiceTask
	inProg      map[int64]string
	failed      map[int64]string
	recorded    []repository.RecordCallParams
	existing    int
	createErr   error
	sequenceErr error
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{inProg: map[int64]string{}, failed: map[int64]string{}}
}

func (f *fakeTaskStore) CreateTask(_ context.Context, params repository.CreateTaskParams) (repository.VoiceTask, error) {
	if f.createErr != nil {
		return repository.VoiceTask{}, f.createErr
	}
	f.nextID++
	t := repository.VoiceTask{
		ID:                f.nextID,
		IncidentID:        params.IncidentID,
		TaskType:          params.TaskType,
		TargetPhone:       params.TargetPhone,
		TargetName:        params.TargetName,
		BookingWorkflowID: params.BookingWorkflowID,
		Status:            repository.TaskStatusPending,
		CreatedBy:         params.CreatedBy,
	}
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeTaskStore) MarkTaskInProgress(_ context.Context, id int64, callID string) error {
	f.inProg[id] = callID
	return nil
}

func (f *fakeTaskStore) MarkTaskFailed(_ context.Context, id int64, errText string) error {
	f.failed[id] = errText
	return nil
}

func (f *fakeTaskStore) NextCallSequence(_ context.Context, _ int64) (int, error) {
	if f.sequenceErr != nil {
		return 0, f.sequenceErr
	}
	return f.existing + len(f.created) + 1, nil
}

func (f *fakeTaskStore) RecordCall(_ context.Context, params repository.RecordCallParams) (repository.CallHistoryRecord, error) {
	f.recorded = append(f.recorded, params)
	return repository.CallHistoryRecord{ID: int64(len(f.recorded)), CallSequence: params.CallSequence}, nil
}

type fakeProvider struct {
	callID string
	err    error
	got    []telephony.PlaceCallRequest
}

func (f *fakeProvider) PlaceCall(_ context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return telephony.PlaceCallResult{}, f.err
	}
	return telephony.PlaceCallResult{CallID: f.callID, Status: "registered"}, nil
}

type fakeMarker struct {
	claimErr error
	claimed  []string
	attached []string
	released []string
}

func (f *fakeMarker) ClaimForCall(_ context.Context, _ int64, taskType string) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimed = append(f.claimed, taskType)
	return nil
}

func (f *fakeMarker) AttachCall(_ context.Context, _ int64, callID string) error {
	f.attached = append(f.attached, callID)
	return nil
}

func (f *fakeMarker) ReleaseFailed(_ context.Context, _ int64, reason string) error {
	f.released = append(f.released, reason)
	return nil
}

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

type testPhoneConfig struct{}

func (testPhoneConfig) GetPhoneRegion() string      { return "AU" }
func (testPhoneConfig) GetPhoneCountryCode() string { return "61" }

func newTestDispatch(store *fakeTaskStore, provider *fakeProvider, marker *fakeMarker, bus *fakeBus) *Service {
	svc := New(store, provider, phone.New(testPhoneConfig{}), bus, logger.New("test"))
	if marker != nil {
		svc.SetWorkflowMarker(marker)
	}
	return svc
}

func ptr[T any](v T) *T { return &v }

func TestDispatchWorkflowLeg(t *testing.T) {
	store := newFakeTaskStore()
	store.existing = 2
	provider := &fakeProvider{callID: "call_xyz"}
	marker := &fakeMarker{}
	bus := &fakeBus{}
	svc := newTestDispatch(store, provider, marker, bus)

	res, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskBookingPatientConfirm,
		IncidentID:  ptr(int64(10)),
		WorkflowID:  ptr(int64(5)),
		TargetPhone: "0421 234 567",
		TargetName:  "John Smith",
		CreatedBy:   "ai_booking_agent_retry",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if res.ProviderCallID != "call_xyz" {
		t.Fatalf("call id = %q", res.ProviderCallID)
	}
	if res.CallSequence != 3 {
		t.Fatalf("sequence = %d, want 3 (two prior tasks)", res.CallSequence)
	}
	if len(marker.claimed) != 1 || marker.claimed[0] != TaskBookingPatientConfirm {
		t.Fatalf("workflow claim = %v", marker.claimed)
	}
	if len(marker.attached) != 1 || marker.attached[0] != "call_xyz" {
		t.Fatalf("attached call = %v", marker.attached)
	}
	if store.inProg[res.Task.ID] != "call_xyz" {
		t.Fatalf("task not marked in progress: %v", store.inProg)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("call history entries = %d", len(store.recorded))
	}
	rec := store.recorded[0]
	if rec.CallTarget != TargetPatient || rec.CallSequence != 3 || rec.ProviderCallID != "call_xyz" {
		t.Fatalf("history = %+v", rec)
	}

	if len(provider.got) != 1 {
		t.Fatalf("provider calls = %d", len(provider.got))
	}
	placed := provider.got[0]
	if placed.ToNumber != "+61421234567" {
		t.Fatalf("provider number = %q, want normalized form", placed.ToNumber)
	}
	if placed.Variables["workflow_id"] != "5" || placed.Variables["call_type"] != TaskBookingPatientConfirm {
		t.Fatalf("variables = %+v", placed.Variables)
	}
	if placed.Variables["worker_name"] != "John Smith" {
		t.Fatalf("variables = %+v", placed.Variables)
	}
	if placed.Metadata["call_sequence"] != 3 {
		t.Fatalf("metadata = %+v", placed.Metadata)
	}

	if len(bus.published) != 1 {
		t.Fatalf("events = %d", len(bus.published))
	}
	evt, ok := bus.published[0].(appevents.CallDispatched)
	if !ok {
		t.Fatalf("event type = %T", bus.published[0])
	}
	if evt.WorkflowID != 5 || evt.ProviderCallID != "call_xyz" || evt.CallSequence != 3 {
		t.Fatalf("event = %+v", evt)
	}
}

func TestDispatchIncludesTimeSlots(t *testing.T) {
	store := newFakeTaskStore()
	provider := &fakeProvider{callID: "call_1"}
	svc := newTestDispatch(store, provider, &fakeMarker{}, &fakeBus{})

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskBookingPatientConfirm,
		WorkflowID:  ptr(int64(1)),
		TargetPhone: "0421234567",
		TargetName:  "John Smith",
		Slots: []TimeSlot{
			{Date: "Monday 2 March", Time: "9:00 AM", Doctor: "Dr Chen"},
			{Date: "Tuesday 3 March", Time: "2:30 PM"},
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	vars := provider.got[0].Variables
	summary := vars["available_times_summary"]
	if !strings.HasPrefix(summary, "1. Monday 2 March at 9:00 AM with Dr Chen") {
		t.Fatalf("summary = %q", summary)
	}
	if !strings.Contains(summary, "2. Tuesday 3 March at 2:30 PM") {
		t.Fatalf("summary = %q", summary)
	}
	if !strings.Contains(vars["available_times_json"], `"Dr Chen"`) {
		t.Fatalf("raw slots = %q", vars["available_times_json"])
	}
}

func TestDispatchProviderFailureMarksTaskAndWorkflow(t *testing.T) {
	store := newFakeTaskStore()
	provider := &fakeProvider{err: apperr.Upstream("voice provider returned 503", nil)}
	marker := &fakeMarker{}
	bus := &fakeBus{}
	svc := newTestDispatch(store, provider, marker, bus)

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskBookingGetTimes,
		WorkflowID:  ptr(int64(9)),
		TargetPhone: "0299998888",
		TargetName:  "City Medical",
	})
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("error kind = %v", err)
	}

	if len(store.failed) != 1 {
		t.Fatalf("failed tasks = %v", store.failed)
	}
	if len(marker.released) != 1 || !strings.Contains(marker.released[0], "dispatch failed") {
		t.Fatalf("workflow release = %v", marker.released)
	}
	if len(store.recorded) != 0 {
		t.Fatal("no call history entry should exist for a failed dispatch")
	}
	if len(bus.published) != 1 {
		t.Fatalf("events = %d", len(bus.published))
	}
	if _, ok := bus.published[0].(appevents.CallDispatchFailed); !ok {
		t.Fatalf("event type = %T", bus.published[0])
	}
}

func TestDispatchClaimConflictStopsEarly(t *testing.T) {
	store := newFakeTaskStore()
	provider := &fakeProvider{callID: "call_1"}
	marker := &fakeMarker{claimErr: apperr.Conflict("a call is already in flight for this workflow")}
	svc := newTestDispatch(store, provider, marker, &fakeBus{})

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskBookingPatientConfirm,
		WorkflowID:  ptr(int64(5)),
		TargetPhone: "0421234567",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("no task should be created when the claim fails")
	}
	if len(provider.got) != 0 {
		t.Fatal("provider must not be called when the claim fails")
	}
}

func TestDispatchReleasesClaimWhenTaskCreationFails(t *testing.T) {
	store := newFakeTaskStore()
	store.createErr = errors.New("insert voice_tasks: connection reset")
	provider := &fakeProvider{callID: "call_1"}
	marker := &fakeMarker{}
	svc := newTestDispatch(store, provider, marker, &fakeBus{})

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskBookingGetTimes,
		WorkflowID:  ptr(int64(7)),
		TargetPhone: "0299998888",
	})
	if err == nil {
		t.Fatal("expected task creation error to surface")
	}

	if len(marker.claimed) != 1 {
		t.Fatalf("claims = %v", marker.claimed)
	}
	if len(marker.released) != 1 || !strings.Contains(marker.released[0], "dispatch failed") {
		t.Fatalf("claim must be released when task creation fails, got %v", marker.released)
	}
	if len(provider.got) != 0 {
		t.Fatal("provider must not be called when task creation fails")
	}
}

func TestDispatchReleasesClaimWhenSequenceFails(t *testing.T) {
	store := newFakeTaskStore()
	store.sequenceErr = errors.New("count call history: connection reset")
	provider := &fakeProvider{callID: "call_1"}
	marker := &fakeMarker{}
	svc := newTestDispatch(store, provider, marker, &fakeBus{})

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskBookingPatientConfirm,
		WorkflowID:  ptr(int64(7)),
		TargetPhone: "0421234567",
	})
	if err == nil {
		t.Fatal("expected sequence error to surface")
	}

	if len(marker.released) != 1 {
		t.Fatalf("claim must be released when the sequence query fails, got %v", marker.released)
	}
	if len(store.created) != 0 {
		t.Fatal("no task should be created after a sequence failure")
	}
	if len(provider.got) != 0 {
		t.Fatal("provider must not be called after a sequence failure")
	}
}

func TestDispatchStandaloneTaskSkipsWorkflowRecords(t *testing.T) {
	store := newFakeTaskStore()
	provider := &fakeProvider{callID: "call_2"}
	svc := newTestDispatch(store, provider, nil, &fakeBus{})

	res, err := svc.Dispatch(context.Background(), DispatchRequest{
		TaskType:    TaskReminder,
		IncidentID:  ptr(int64(3)),
		TargetPhone: "0421234567",
		TargetName:  "John Smith",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.CallSequence != 0 {
		t.Fatalf("standalone task should carry no sequence, got %d", res.CallSequence)
	}
	if len(store.recorded) != 0 {
		t.Fatal("standalone tasks must not write call history")
	}
}

func TestDispatchValidatesInput(t *testing.T) {
	svc := newTestDispatch(newFakeTaskStore(), &fakeProvider{}, nil, &fakeBus{})

	if _, err := svc.Dispatch(context.Background(), DispatchRequest{TargetPhone: "0421234567"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("missing task type: %v", err)
	}
	if _, err := svc.Dispatch(context.Background(), DispatchRequest{TaskType: TaskCheckIn}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("missing phone: %v", err)
	}
}

func TestCallTargetFor(t *testing.T) {
	cases := map[string]string{
		TaskBookingGetTimes:       TargetMedicalCenter,
		TaskBookingFinalConfirm:   TargetMedicalCenter,
		TaskBookingPatientConfirm: TargetPatient,
		TaskFollowUp:              TargetWorker,
	}
	for taskType, want := range cases {
		if got := CallTargetFor(taskType); got != want {
			t.Errorf("CallTargetFor(%s) = %s, want %s", taskType, got, want)
		}
	}
}
