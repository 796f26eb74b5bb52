package analysis_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"agrosense/internal/alerts"
	"agrosense/internal/analysis"
	"agrosense/internal/logger"
	"agrosense/internal/models"
	"agrosense/internal/storage"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

type fakeReadingStore struct {
	readings  []models.SensorReading
	insertErr error
	last24Err error
}

func (f *fakeReadingStore) Insert(ctx context.Context, r *models.SensorReading) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.readings = append(f.readings, *r)
	return nil
}

func (f *fakeReadingStore) Last24h(ctx context.Context, fieldID int, sensorType models.SensorType) ([]models.SensorReading, error) {
	if f.last24Err != nil {
		return nil, f.last24Err
	}
	var out []models.SensorReading
	for _, r := range f.readings {
		if r.FieldID == fieldID && r.SensorType == sensorType {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAlertStore struct {
	alerts    []models.Alert
	insertErr error
}

func (f *fakeAlertStore) Insert(ctx context.Context, a *models.Alert) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, existing := range f.alerts {
		if existing.FieldID == a.FieldID && existing.Type == a.Type && existing.Status == models.StatusActive {
			return storage.ErrDuplicateActiveAlert
		}
	}
	f.alerts = append(f.alerts, *a)
	return nil
}

func (f *fakeAlertStore) ActiveByField(ctx context.Context, fieldID int) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range f.alerts {
		if a.FieldID == fieldID && a.Status == models.StatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) ActiveByFieldAndType(ctx context.Context, fieldID int, alertType models.AlertType) (*models.Alert, error) {
	for _, a := range f.alerts {
		if a.FieldID == fieldID && a.Type == alertType && a.Status == models.StatusActive {
			alert := a
			return &alert, nil
		}
	}
	return nil, nil
}

type fakeNotifier struct {
	events []*models.AlertEvent
}

func (f *fakeNotifier) Notify(event *models.AlertEvent) {
	f.events = append(f.events, event)
}

func newService(readings *fakeReadingStore, alertStore *fakeAlertStore, notifier *fakeNotifier) *analysis.Service {
	return analysis.New(analysis.Config{
		Readings: readings,
		Dedup:    alerts.NewDeduplicator(alertStore, nil),
		Notifier: notifier,
	})
}

const droughtPayload = `{"fieldId": 5, "sensorType": "SoilHumidity", "value": 15.0, "timestamp": "2026-08-29T10:00:00Z"}`

func TestProcessCreatesAlert(t *testing.T) {
	readings := &fakeReadingStore{}
	alertStore := &fakeAlertStore{}
	notifier := &fakeNotifier{}
	svc := newService(readings, alertStore, notifier)

	outcome, err := svc.Process(context.Background(), []byte(droughtPayload))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if outcome != analysis.OutcomeAck {
		t.Fatalf("outcome = %s, want ack", outcome)
	}

	if len(readings.readings) != 1 {
		t.Fatalf("readings persisted = %d, want 1", len(readings.readings))
	}
	if len(alertStore.alerts) != 1 {
		t.Fatalf("alerts created = %d, want 1", len(alertStore.alerts))
	}

	alert := alertStore.alerts[0]
	if alert.Type != models.AlertDroughtCritical {
		t.Errorf("alert type = %s, want %s", alert.Type, models.AlertDroughtCritical)
	}
	if alert.Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want %s", alert.Severity, models.SeverityCritical)
	}
	if !strings.Contains(alert.Message, "15.0") {
		t.Errorf("message %q should contain the trigger value", alert.Message)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.events))
	}
	if notifier.events[0].AlertID != alert.ID {
		t.Error("notification must reference the created alert")
	}
}

func TestProcessSuppressesSecondDelivery(t *testing.T) {
	readings := &fakeReadingStore{}
	alertStore := &fakeAlertStore{}
	notifier := &fakeNotifier{}
	svc := newService(readings, alertStore, notifier)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		outcome, err := svc.Process(ctx, []byte(droughtPayload))
		if err != nil {
			t.Fatalf("Process() #%d error = %v", i+1, err)
		}
		if outcome != analysis.OutcomeAck {
			t.Fatalf("Process() #%d outcome = %s, want ack", i+1, outcome)
		}
	}

	active, err := alertStore.ActiveByFieldAndType(ctx, 5, models.AlertDroughtCritical)
	if err != nil {
		t.Fatalf("ActiveByFieldAndType() error = %v", err)
	}
	if active == nil {
		t.Fatal("expected an active alert")
	}
	if len(alertStore.alerts) != 1 {
		t.Errorf("alerts = %d, want exactly 1 after duplicate delivery", len(alertStore.alerts))
	}
	if len(notifier.events) != 1 {
		t.Errorf("notifications = %d, want 1: suppressed duplicates must not notify", len(notifier.events))
	}
}

func TestProcessNormalReadingNoAlert(t *testing.T) {
	readings := &fakeReadingStore{}
	alertStore := &fakeAlertStore{}
	svc := newService(readings, alertStore, &fakeNotifier{})

	payload := `{"fieldId": 5, "sensorType": "Temperature", "value": 21.0, "timestamp": "2026-08-29T10:00:00Z"}`
	outcome, err := svc.Process(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if outcome != analysis.OutcomeAck {
		t.Fatalf("outcome = %s, want ack", outcome)
	}
	if len(readings.readings) != 1 {
		t.Errorf("readings persisted = %d, want 1", len(readings.readings))
	}
	if len(alertStore.alerts) != 0 {
		t.Errorf("alerts = %d, want 0 for a normal reading", len(alertStore.alerts))
	}
}

func TestProcessUnknownSensorTypeRejects(t *testing.T) {
	readings := &fakeReadingStore{}
	alertStore := &fakeAlertStore{}
	svc := newService(readings, alertStore, &fakeNotifier{})

	payload := `{"fieldId": 5, "sensorType": "Wind", "value": 15.0, "timestamp": "2026-08-29T10:00:00Z"}`
	outcome, err := svc.Process(context.Background(), []byte(payload))
	if !errors.Is(err, models.ErrUnknownSensorType) {
		t.Fatalf("error = %v, want ErrUnknownSensorType", err)
	}
	if outcome != analysis.OutcomeReject {
		t.Fatalf("outcome = %s, want reject: unknown types never parse differently", outcome)
	}
	if len(readings.readings) != 0 {
		t.Error("no reading may be persisted for an unknown sensor type")
	}
}

func TestProcessMalformedPayloadRejects(t *testing.T) {
	readings := &fakeReadingStore{}
	svc := newService(readings, &fakeAlertStore{}, &fakeNotifier{})

	outcome, err := svc.Process(context.Background(), []byte(`{"fieldId": 5}`))
	if !errors.Is(err, models.ErrMalformedPayload) {
		t.Fatalf("error = %v, want ErrMalformedPayload", err)
	}
	if outcome != analysis.OutcomeReject {
		t.Fatalf("outcome = %s, want reject", outcome)
	}
	if len(readings.readings) != 0 {
		t.Error("no reading may be persisted for a malformed payload")
	}
}

func TestProcessReadingStoreFailureRequeues(t *testing.T) {
	readings := &fakeReadingStore{insertErr: errors.New("connection refused")}
	svc := newService(readings, &fakeAlertStore{}, &fakeNotifier{})

	outcome, err := svc.Process(context.Background(), []byte(droughtPayload))
	if err == nil {
		t.Fatal("expected an error")
	}
	if outcome != analysis.OutcomeRequeue {
		t.Fatalf("outcome = %s, want requeue", outcome)
	}
}

func TestProcessAlertStoreFailureRequeues(t *testing.T) {
	// Reading write succeeds, alert write fails: the message must requeue so
	// the broker redelivers it.
	readings := &fakeReadingStore{}
	alertStore := &fakeAlertStore{insertErr: errors.New("connection refused")}
	svc := newService(readings, alertStore, &fakeNotifier{})

	outcome, err := svc.Process(context.Background(), []byte(droughtPayload))
	if err == nil {
		t.Fatal("expected an error")
	}
	if outcome != analysis.OutcomeRequeue {
		t.Fatalf("outcome = %s, want requeue", outcome)
	}
	if len(readings.readings) != 1 {
		t.Errorf("readings persisted = %d, want 1 before the alert failure", len(readings.readings))
	}
}

func TestProcessDroughtContextFailureRequeues(t *testing.T) {
	readings := &fakeReadingStore{last24Err: errors.New("connection refused")}
	svc := newService(readings, &fakeAlertStore{}, &fakeNotifier{})

	outcome, err := svc.Process(context.Background(), []byte(droughtPayload))
	if err == nil {
		t.Fatal("expected an error")
	}
	if outcome != analysis.OutcomeRequeue {
		t.Fatalf("outcome = %s, want requeue", outcome)
	}
}
