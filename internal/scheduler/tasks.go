package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPatientRetryPass = "booking.patient.retry_pass"

const TaskIncidentFollowUp = "incidents.follow_up"

type PatientRetryPassPayload struct {
	TriggeredBy string `json:"triggeredBy"`
}

type IncidentFollowUpPayload struct {
	IncidentID  int64  `json:"incidentId"`
	WorkerID    int64  `json:"workerId"`
	WorkerName  string `json:"workerName"`
	WorkerPhone string `json:"workerPhone"`
}

func NewPatientRetryPassTask(payload PatientRetryPassPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPatientRetryPass, data), nil
}

func ParsePatientRetryPassPayload(task *asynq.Task) (PatientRetryPassPayload, error) {
	var payload PatientRetryPassPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PatientRetryPassPayload{}, err
	}
	return payload, nil
}

func NewIncidentFollowUpTask(payload IncidentFollowUpPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIncidentFollowUp, data), nil
}

func ParseIncidentFollowUpPayload(task *asynq.Task) (IncidentFollowUpPayload, error) {
	var payload IncidentFollowUpPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return IncidentFollowUpPayload{}, err
	}
	return payload, nil
}
