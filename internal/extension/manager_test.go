package extension

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/extmodels/internal/domain"
	"github.com/rpattn/extmodels/internal/registry"
	"github.com/rpattn/extmodels/internal/validation"
)

// memSchemas is an in-memory SchemaRepository for manager tests.
type memSchemas struct {
	mu   sync.Mutex
	docs []domain.SchemaDocument
}

func (m *memSchemas) Insert(_ context.Context, schema domain.SchemaDocument) (domain.SchemaDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, d := range m.docs {
		if d.TenantID == schema.TenantID && d.EntityKind == schema.EntityKind && d.Version > max {
			max = d.Version
		}
	}
	schema.Version = max + 1
	m.docs = append(m.docs, schema)
	return schema, nil
}

func (m *memSchemas) Latest(_ context.Context, tenantID uuid.UUID, entityKind string) (*domain.SchemaDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.SchemaDocument
	for i := range m.docs {
		d := m.docs[i]
		if d.TenantID != tenantID || d.EntityKind != entityKind || !d.IsActive {
			continue
		}
		if latest == nil || d.Version > latest.Version {
			latest = &m.docs[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *memSchemas) AtVersion(_ context.Context, tenantID uuid.UUID, entityKind string, version int) (*domain.SchemaDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.TenantID == tenantID && d.EntityKind == entityKind && d.Version == version {
			copied := d
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memSchemas) ListVersions(_ context.Context, tenantID uuid.UUID, entityKind string) ([]domain.SchemaDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.SchemaDocument
	for _, d := range m.docs {
		if d.TenantID == tenantID && d.EntityKind == entityKind {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func (m *memSchemas) Deactivate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.docs {
		if m.docs[i].ID == id {
			m.docs[i].IsActive = false
			return nil
		}
	}
	return domain.ErrSchemaNotFound
}

// memRecords is an in-memory RecordRepository for manager tests.
type memRecords struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]domain.Record
	saves int
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[uuid.UUID]domain.Record)}
}

func (m *memRecords) Insert(_ context.Context, record domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = uuid.New()
	m.rows[record.ID] = record
	m.saves++
	return record, nil
}

func (m *memRecords) Update(_ context.Context, record domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[record.ID]; !ok {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	m.rows[record.ID] = record
	m.saves++
	return record, nil
}

func (m *memRecords) GetByID(_ context.Context, id uuid.UUID) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.rows[id]
	if !ok {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	return record, nil
}

func (m *memRecords) ListByKind(_ context.Context, tenantID uuid.UUID, entityKind string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Record
	for _, r := range m.rows {
		if r.TenantID == tenantID && r.EntityKind == entityKind {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *memRecords) ResolveTenant(_ context.Context, recordID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.rows[recordID]
	if !ok {
		return uuid.Nil, domain.ErrTenantNotFound
	}
	return record.TenantID, nil
}

func newTestManager() (*Manager, *registry.Registry, *memRecords) {
	reg := registry.New(&memSchemas{})
	records := newMemRecords()
	return NewManager(reg, records), reg, records
}

func TestSave_PinsRecordToValidatingVersion(t *testing.T) {
	mgr, reg, _ := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"}}}`))
	if err != nil {
		t.Fatalf("publish v1 failed: %v", err)
	}

	first, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "alice", map[string]any{"f1": "hello"}))
	if err != nil {
		t.Fatalf("save under v1 failed: %v", err)
	}
	if first.SchemaVersion == nil || *first.SchemaVersion != 1 {
		t.Fatalf("expected version marker 1, got %v", first.SchemaVersion)
	}

	_, err = reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"},"f2":{"type":"number"}}}`))
	if err != nil {
		t.Fatalf("publish v2 failed: %v", err)
	}

	second, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "bob", map[string]any{"f1": "hi", "f2": "3.5"}))
	if err != nil {
		t.Fatalf("save under v2 failed: %v", err)
	}
	if second.SchemaVersion == nil || *second.SchemaVersion != 2 {
		t.Fatalf("expected version marker 2, got %v", second.SchemaVersion)
	}
	if second.Attributes["f2"] != 3.5 {
		t.Fatalf("expected coerced f2 3.5, got %v", second.Attributes["f2"])
	}

	// The earlier record stays pinned to the version that validated it.
	if *first.SchemaVersion != 1 {
		t.Fatalf("first record's marker moved to %d", *first.SchemaVersion)
	}
}

func TestSave_NoSchemaStoresFreeFormBag(t *testing.T) {
	mgr, _, _ := newTestManager()

	record, err := mgr.Save(context.Background(),
		domain.NewRecord(uuid.New(), "contact", "carol", map[string]any{"anything": []any{"goes", 1.0}}))
	if err != nil {
		t.Fatalf("save without schema failed: %v", err)
	}
	if record.SchemaVersion != nil {
		t.Fatalf("expected unset version marker, got %d", *record.SchemaVersion)
	}
	if record.Attributes["anything"] == nil {
		t.Fatalf("expected bag to be stored as-is")
	}
}

func TestSave_NoSchemaRejectsUnserializableBag(t *testing.T) {
	mgr, _, records := newTestManager()

	_, err := mgr.Save(context.Background(),
		domain.NewRecord(uuid.New(), "contact", "carol", map[string]any{"bad": make(chan int)}))
	if err == nil {
		t.Fatalf("expected save of unserializable bag to fail")
	}
	if records.saves != 0 {
		t.Fatalf("expected no writes, got %d", records.saves)
	}
}

func TestSave_NilTenantFails(t *testing.T) {
	mgr, _, _ := newTestManager()

	_, err := mgr.Save(context.Background(),
		domain.NewRecord(uuid.Nil, "contact", "dave", map[string]any{}))
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestSave_ValidationFailureWritesNothing(t *testing.T) {
	mgr, reg, records := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"integer"}}}`))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	_, err = mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "erin", map[string]any{"f1": "not a number"}))
	var verr *domain.ExtendedDataValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ExtendedDataValidationError, got %v", err)
	}
	if _, ok := verr.ViolationFor("f1"); !ok {
		t.Fatalf("expected a violation on f1, got %+v", verr.Violations)
	}
	if records.saves != 0 {
		t.Fatalf("expected no writes on validation failure, got %d", records.saves)
	}
}

func TestSave_UpdateOverlaysBagOntoStored(t *testing.T) {
	mgr, reg, _ := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"},"f2":{"type":"string"}}}`))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	saved, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "frank",
		map[string]any{"f1": "keep me", "note": "ungoverned"}))
	if err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	updated, err := mgr.Save(ctx, saved.WithAttributes(map[string]any{"f2": "added later"}))
	if err != nil {
		t.Fatalf("update save failed: %v", err)
	}

	if updated.Attributes["f1"] != "keep me" {
		t.Fatalf("expected stored f1 to survive the partial update, got %v", updated.Attributes["f1"])
	}
	if updated.Attributes["note"] != "ungoverned" {
		t.Fatalf("expected ungoverned key to survive, got %v", updated.Attributes["note"])
	}
	if updated.Attributes["f2"] != "added later" {
		t.Fatalf("expected f2 from the update, got %v", updated.Attributes["f2"])
	}
}

func TestSave_CreationModeIgnoresRequired(t *testing.T) {
	mgr, reg, _ := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"}},"required":["f1"]}`))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// A brand-new record may omit required fields; they are enforced on
	// subsequent updates only.
	saved, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "grace", map[string]any{}))
	if err != nil {
		t.Fatalf("expected creation without required field to pass, got %v", err)
	}

	_, err = mgr.Save(ctx, saved.WithAttributes(map[string]any{}))
	var verr *domain.ExtendedDataValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected update to enforce required, got %v", err)
	}
}

func TestUpdateToLatestSchema_MovesMarkerForward(t *testing.T) {
	mgr, reg, records := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"}}}`))
	if err != nil {
		t.Fatalf("publish v1 failed: %v", err)
	}

	saved, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "heidi", map[string]any{"f1": "x"}))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	_, err = reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"},"f2":{"type":"number"}}}`))
	if err != nil {
		t.Fatalf("publish v2 failed: %v", err)
	}

	migrated, err := mgr.UpdateToLatestSchema(ctx, saved.ID)
	if err != nil {
		t.Fatalf("update to latest failed: %v", err)
	}
	if migrated.SchemaVersion == nil || *migrated.SchemaVersion != 2 {
		t.Fatalf("expected marker 2, got %v", migrated.SchemaVersion)
	}

	stored, err := records.GetByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.SchemaVersion == nil || *stored.SchemaVersion != 2 {
		t.Fatalf("expected stored marker 2, got %v", stored.SchemaVersion)
	}
}

func TestUpdateToLatestSchema_NoopWhenAlreadyLatest(t *testing.T) {
	mgr, reg, records := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"}}}`))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	saved, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "ivan", map[string]any{"f1": "x"}))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	before := records.saves

	if _, err := mgr.UpdateToLatestSchema(ctx, saved.ID); err != nil {
		t.Fatalf("update to latest failed: %v", err)
	}
	if records.saves != before {
		t.Fatalf("expected no write when already on the latest version")
	}
}

func TestUpdateToLatestSchema_FailsWhenBagViolatesNewSchema(t *testing.T) {
	mgr, reg, records := newTestManager()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"}}}`))
	if err != nil {
		t.Fatalf("publish v1 failed: %v", err)
	}

	saved, err := mgr.Save(ctx, domain.NewRecord(tenantID, "contact", "judy", map[string]any{"f1": "x"}))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	_, err = reg.Publish(ctx, tenantID, "contact",
		json.RawMessage(`{"type":"object","properties":{"f1":{"type":"string"},"f2":{"type":"number"}},"required":["f2"]}`))
	if err != nil {
		t.Fatalf("publish v2 failed: %v", err)
	}

	_, err = mgr.UpdateToLatestSchema(ctx, saved.ID)
	var verr *domain.ExtendedDataValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ExtendedDataValidationError, got %v", err)
	}

	stored, err := records.GetByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.SchemaVersion == nil || *stored.SchemaVersion != 1 {
		t.Fatalf("expected stored record to stay on version 1, got %v", stored.SchemaVersion)
	}
}

func TestValidate_PassthroughWhenNoSchema(t *testing.T) {
	mgr, _, _ := newTestManager()

	bag := map[string]any{"free": "form"}
	out, err := mgr.Validate(context.Background(),
		domain.NewRecord(uuid.New(), "contact", "kate", nil), bag, validation.Creation)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if out["free"] != "form" {
		t.Fatalf("expected bag passthrough, got %v", out)
	}
}
