package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/audit"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/internal/vapi"

	"github.com/stretchr/testify/require"
)

type fakeAssistant struct {
	spec    vapi.AssistantSpec
	toolIDs []string
}

type fakePlatform struct {
	mu sync.Mutex

	unconfigured bool
	seq          int

	assistants  map[string]fakeAssistant
	tools       map[string]vapi.ToolSpec
	toolUpdates map[string][]vapi.FunctionUpdate

	failToolSuffix  string
	failAllTools    bool
	failAssistant   error
	failDeletes     bool
	createToolCalls int
	deleted         []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		assistants:  map[string]fakeAssistant{},
		tools:       map[string]vapi.ToolSpec{},
		toolUpdates: map[string][]vapi.FunctionUpdate{},
	}
}

func (f *fakePlatform) Configured() bool { return !f.unconfigured }

func (f *fakePlatform) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakePlatform) CreateAssistant(_ context.Context, spec vapi.AssistantSpec, toolIDs []string) (vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if toolIDs == nil {
		return vapi.Assistant{}, vapi.ErrToolIDsRequired
	}
	if f.failAssistant != nil {
		return vapi.Assistant{}, f.failAssistant
	}
	id := f.nextID("asst")
	f.assistants[id] = fakeAssistant{spec: spec, toolIDs: append([]string(nil), toolIDs...)}
	return vapi.Assistant{ID: id}, nil
}

func (f *fakePlatform) UpdateAssistant(_ context.Context, id string, toolIDs []string, spec vapi.AssistantSpec) (vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if toolIDs == nil {
		return vapi.Assistant{}, vapi.ErrToolIDsRequired
	}
	if _, ok := f.assistants[id]; !ok {
		return vapi.Assistant{}, &vapi.APIError{Op: "update assistant", StatusCode: 404}
	}
	f.assistants[id] = fakeAssistant{spec: spec, toolIDs: append([]string(nil), toolIDs...)}
	return vapi.Assistant{ID: id}, nil
}

func (f *fakePlatform) DeleteAssistant(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.failDeletes {
		return &vapi.APIError{Op: "delete assistant", StatusCode: 500}
	}
	delete(f.assistants, id)
	return nil
}

func (f *fakePlatform) CreateTool(_ context.Context, spec vapi.ToolSpec) (vapi.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createToolCalls++
	name := spec.Name
	if spec.Function != nil {
		name = spec.Function.Name
	}
	if f.failAllTools || (f.failToolSuffix != "" && strings.HasSuffix(name, f.failToolSuffix)) {
		return vapi.Tool{}, &vapi.APIError{Op: "create tool", StatusCode: 400, Body: "bad"}
	}
	id := f.nextID("tool")
	f.tools[id] = spec
	return vapi.Tool{ID: id, Type: spec.Type}, nil
}

func (f *fakePlatform) UpdateTool(_ context.Context, id string, fn vapi.FunctionUpdate) (vapi.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tools[id]; !ok {
		return vapi.Tool{}, &vapi.APIError{Op: "update tool", StatusCode: 404}
	}
	f.toolUpdates[id] = append(f.toolUpdates[id], fn)
	return vapi.Tool{ID: id}, nil
}

func (f *fakePlatform) DeleteTool(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.failDeletes {
		return &vapi.APIError{Op: "delete tool", StatusCode: 500}
	}
	delete(f.tools, id)
	return nil
}

func (f *fakePlatform) assistantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assistants)
}

type fixture struct {
	sync       *Synchronizer
	platform   *fakePlatform
	assistants *assistant.MemoryRepo
	audit      *audit.MemoryRepo
	locker     *MemoryLocker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tenantRepo := tenants.NewMemoryRepo()
	require.NoError(t, tenantRepo.Put(tenants.Tenant{
		ID:       "t1",
		Name:     "Acme Dental",
		Industry: "dental_clinic",
		Phone:    "+34 600 000 001",
		Status:   tenants.StatusActive,
	}))

	f := fixture{
		platform:   newFakePlatform(),
		assistants: assistant.NewMemoryRepo(),
		audit:      audit.NewMemoryRepo(),
		locker:     NewMemoryLocker(),
	}
	f.sync = New(f.platform, f.assistants, tenantRepo, f.locker, audit.NewService(f.audit), Options{
		PublicBaseURL: "https://api.example.com/",
		WebhookSecret: "s3cret",
	})
	return f
}

func TestProvision_CreatesToolsAndAssistant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	require.True(t, a.Provisioned())
	require.Len(t, a.ExternalToolIDs(), len(assistant.Catalog()))

	live := f.platform.assistants[a.ExternalID]
	require.Equal(t, a.ExternalToolIDs(), live.toolIDs)
	require.Equal(t, "t1", live.spec.Metadata["tenantId"])
	require.Equal(t, "https://api.example.com/webhooks/vapi", live.spec.Server.URL)
	require.Equal(t, a.Prompt, live.spec.Model.Messages[0].Content)

	direct, _ := a.Tool(assistant.ToolCurrentDatetime)
	spec := f.platform.tools[direct.ExternalID]
	require.Equal(t, vapi.ToolTypeAPIRequest, spec.Type)
	require.Equal(t, "https://api.example.com/tools/t1/current-time", spec.URL)
	require.Equal(t, "acme_dental_get_current_datetime", spec.Name)

	cb, _ := a.Tool(assistant.ToolCreateAppointment)
	spec = f.platform.tools[cb.ExternalID]
	require.Equal(t, vapi.ToolTypeFunction, spec.Type)
	require.Equal(t, "acme_dental_create_appointment", spec.Function.Name)
	require.Equal(t, "s3cret", spec.Server.Secret)

	evs := f.audit.Events()
	require.Len(t, evs, 1)
	require.Equal(t, audit.EventAssistantProvisioned, evs[0].Type)
}

func TestProvision_SecondCallIsAlreadyProvisioned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	tools := f.platform.createToolCalls

	_, err = f.sync.Provision(ctx, "t1")
	require.ErrorIs(t, err, ErrAlreadyProvisioned)
	require.Equal(t, 1, f.platform.assistantCount())
	require.Equal(t, tools, f.platform.createToolCalls)
}

func TestProvision_ToolFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	f.platform.failToolSuffix = assistant.ToolCheckAvailability

	a, err := f.sync.Provision(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, a.ExternalToolIDs(), len(assistant.Catalog())-1)

	missing, _ := a.Tool(assistant.ToolCheckAvailability)
	require.Empty(t, missing.ExternalID)
	require.Equal(t, a.ExternalToolIDs(), f.platform.assistants[a.ExternalID].toolIDs)
}

func TestProvision_AllToolsFailingNamesToolStep(t *testing.T) {
	f := newFixture(t)
	f.platform.failAllTools = true

	_, err := f.sync.Provision(context.Background(), "t1")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepCreateTools, stepErr.Step)
	require.Zero(t, f.platform.assistantCount())
}

func TestProvision_AssistantFailureKeepsToolsForRetry(t *testing.T) {
	f := newFixture(t)
	f.platform.failAssistant = &vapi.APIError{Op: "create assistant", StatusCode: 502}
	ctx := context.Background()

	_, err := f.sync.Provision(ctx, "t1")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepCreateAssistant, stepErr.Step)
	require.Contains(t, err.Error(), "assistant creation")

	stored, err := f.assistants.Get(ctx, "t1")
	require.NoError(t, err)
	require.False(t, stored.Provisioned())
	require.Len(t, stored.ExternalToolIDs(), len(assistant.Catalog()))

	calls := f.platform.createToolCalls
	f.platform.failAssistant = nil
	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, calls, f.platform.createToolCalls, "existing tool ids must be reused")
	require.Equal(t, stored.ExternalToolIDs(), a.ExternalToolIDs())
}

func TestProvision_Unconfigured(t *testing.T) {
	f := newFixture(t)
	f.platform.unconfigured = true
	_, err := f.sync.Provision(context.Background(), "t1")
	require.ErrorIs(t, err, vapi.ErrUnavailable)
}

func TestUpdate_PreservesToolIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	before := append([]string(nil), f.platform.assistants[a.ExternalID].toolIDs...)
	require.NotEmpty(t, before)

	voice := assistant.Voice{Provider: "11labs", VoiceID: "rachel"}
	updated, err := f.sync.Update(ctx, "t1", Patch{Voice: &voice})
	require.NoError(t, err)
	require.Equal(t, voice, updated.Voice)

	live := f.platform.assistants[a.ExternalID]
	require.Equal(t, before, live.toolIDs)
	require.Equal(t, "rachel", live.spec.Voice.VoiceID)
}

func TestUpdate_UnprovisionedSavesLocally(t *testing.T) {
	f := newFixture(t)
	name := "Recepción Acme"
	a, err := f.sync.Update(context.Background(), "t1", Patch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, a.Name)
	require.False(t, a.Provisioned())
	require.Zero(t, f.platform.assistantCount())
}

func TestUpdate_CustomPromptAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	custom := "Eres un asistente."
	a, err := f.sync.Update(ctx, "t1", Patch{Prompt: &custom})
	require.NoError(t, err)
	require.True(t, a.CustomPrompt)
	require.Equal(t, custom, a.Prompt)

	lang := "en-US"
	a, err = f.sync.Update(ctx, "t1", Patch{Language: &lang})
	require.NoError(t, err)
	require.Equal(t, custom, a.Prompt, "custom prompt survives unrelated updates")

	a, err = f.sync.Update(ctx, "t1", Patch{ResetPrompt: true})
	require.NoError(t, err)
	require.False(t, a.CustomPrompt)
	require.Contains(t, a.Prompt, "## Booking flow")
}

func TestPreview_ReflectsStoredState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg, err := f.sync.Preview(ctx, "t1")
	require.NoError(t, err)
	require.Contains(t, cfg.Prompt, "Acme Dental")

	fields := []assistant.FieldSelection{
		{Name: "name"},
		{Name: "petName", Type: "string", Label: "pet name", Custom: true},
	}
	_, err = f.sync.UpdateRequiredFields(ctx, "t1", assistant.ToolCreateAppointment, fields)
	require.NoError(t, err)
	name := "Front Desk"
	_, err = f.sync.Update(ctx, "t1", Patch{Name: &name})
	require.NoError(t, err)

	cfg, err = f.sync.Preview(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "Front Desk", cfg.Name)
	require.Contains(t, cfg.Prompt, "(petName)")
	require.Equal(t, fields, cfg.RequiredFields[assistant.ToolCreateAppointment])
	var found bool
	for _, tool := range cfg.Tools {
		if tool.Name == assistant.ToolCreateAppointment {
			found = true
			require.Contains(t, tool.Parameters.Properties, "petName")
		}
	}
	require.True(t, found)

	custom := "Eres un asistente."
	_, err = f.sync.Update(ctx, "t1", Patch{Prompt: &custom})
	require.NoError(t, err)
	cfg, err = f.sync.Preview(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, custom, cfg.Prompt)
	require.Zero(t, f.platform.assistantCount())
}

func TestUpdate_DisablingToolDropsItFromLiveList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	info, _ := a.Tool(assistant.ToolBusinessInfo)

	_, err = f.sync.Update(ctx, "t1", Patch{ToolsEnabled: map[string]bool{assistant.ToolBusinessInfo: false}})
	require.NoError(t, err)
	require.NotContains(t, f.platform.assistants[a.ExternalID].toolIDs, info.ExternalID)
	require.Len(t, f.platform.assistants[a.ExternalID].toolIDs, len(a.ExternalToolIDs())-1)

	_, err = f.sync.Update(ctx, "t1", Patch{ToolsEnabled: map[string]bool{"nope": true}})
	var vErr *assistant.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestDeprovision_ClearsFirstAndSwallowsDeleteFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	f.platform.failDeletes = true

	require.NoError(t, f.sync.Deprovision(ctx, "t1"))

	stored, err := f.assistants.Get(ctx, "t1")
	require.NoError(t, err)
	require.False(t, stored.Provisioned())
	require.Empty(t, stored.ExternalToolIDs())

	// tools first, assistant last
	require.Len(t, f.platform.deleted, len(a.ExternalToolIDs())+1)
	require.Equal(t, a.ExternalID, f.platform.deleted[len(f.platform.deleted)-1])

	require.ErrorIs(t, f.sync.Deprovision(ctx, "t1"), ErrNotProvisioned)
}

func TestDeprovision_ThenProvisionAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, f.sync.Deprovision(ctx, "t1"))
	require.Zero(t, f.platform.assistantCount())

	second, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	require.NotEqual(t, first.ExternalID, second.ExternalID)
	require.Equal(t, 1, f.platform.assistantCount())
}

func TestUpdateRequiredFields_UpdatesFunctionOnlyAndRepushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	before := f.platform.assistants[a.ExternalID].toolIDs

	fields := []assistant.FieldSelection{
		{Name: "name"},
		{Name: "phone"},
		{Name: "insuranceNumber", Type: "string", Label: "número de póliza", Custom: true},
	}
	updated, err := f.sync.UpdateRequiredFields(ctx, "t1", assistant.ToolCreateAppointment, fields)
	require.NoError(t, err)

	tool, _ := updated.Tool(assistant.ToolCreateAppointment)
	require.Equal(t, []string{"clientName", "clientPhone", "insuranceNumber"}, tool.Parameters.Required)
	require.Contains(t, updated.Prompt, "- número de póliza (insuranceNumber)")

	ups := f.platform.toolUpdates[tool.ExternalID]
	require.Len(t, ups, 1)
	require.Equal(t, "acme_dental_create_appointment", ups[0].Name)
	schema, ok := ups[0].Parameters.(assistant.Schema)
	require.True(t, ok)
	require.Contains(t, schema.Properties, "insuranceNumber")

	live := f.platform.assistants[a.ExternalID]
	require.Equal(t, before, live.toolIDs)
	require.Equal(t, updated.Prompt, live.spec.Model.Messages[0].Content)
}

func TestUpdateRequiredFields_ValidationFailsBeforeAnyCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)

	_, err = f.sync.UpdateRequiredFields(ctx, "t1", assistant.ToolCheckAvailability, assistant.Fields("shoeSize"))
	var vErr *assistant.ValidationError
	require.ErrorAs(t, err, &vErr)
	for _, ups := range f.platform.toolUpdates {
		require.Empty(t, ups)
	}

	_, err = f.sync.UpdateRequiredFields(ctx, "t1", "book_flight", assistant.Fields("name"))
	require.ErrorAs(t, err, &vErr)
}

func TestReconcileTools_CreatesMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.platform.failToolSuffix = assistant.ToolCheckAvailability

	a, err := f.sync.Provision(ctx, "t1")
	require.NoError(t, err)
	f.platform.failToolSuffix = ""

	res, err := f.sync.ReconcileTools(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{assistant.ToolCheckAvailability}, res.Created)
	require.Empty(t, res.Failed)
	require.Len(t, res.ToolIDs, len(assistant.Catalog()))
	require.Equal(t, res.ToolIDs, f.platform.assistants[a.ExternalID].toolIDs)
}

func TestReconcileTools_RequiresProvisioned(t *testing.T) {
	f := newFixture(t)
	_, err := f.sync.ReconcileTools(context.Background(), "t1")
	require.ErrorIs(t, err, ErrNotProvisioned)
}

func TestProvision_LockContention(t *testing.T) {
	f := newFixture(t)
	unlock, err := f.locker.Lock(context.Background(), lockKey("t1"), time.Minute)
	require.NoError(t, err)

	_, err = f.sync.Provision(context.Background(), "t1")
	require.ErrorIs(t, err, ErrProvisioningInProgress)

	unlock()
	_, err = f.sync.Provision(context.Background(), "t1")
	require.NoError(t, err)
}

func TestProvision_ConcurrentCallsCreateOneAssistant(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sync.Provision(context.Background(), "t1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, ErrProvisioningInProgress) || errors.Is(err, ErrAlreadyProvisioned), "unexpected err: %v", err)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, f.platform.assistantCount())
}

func TestMemoryLocker_ExpiredLockCanBeRetaken(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	unlockA, err := l.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	unlockB, err := l.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)

	unlockA() // stale holder must not release B's claim
	_, err = l.Lock(context.Background(), "k", time.Second)
	require.ErrorIs(t, err, ErrProvisioningInProgress)
	unlockB()
}

func TestExternalToolName(t *testing.T) {
	cases := []struct {
		tenant tenants.Tenant
		tool   string
		want   string
	}{
		{tenants.Tenant{Name: "Acme Dental"}, "create_appointment", "acme_dental_create_appointment"},
		{tenants.Tenant{Name: "Clínica Peña & Hijos"}, "check_availability", "clinica_pena_hijos_check_availability"},
		{tenants.Tenant{ID: "ab-12", Name: "!!!"}, "get_business_info", "ab12_get_business_info"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ExternalToolName(c.tenant, c.tool))
	}

	long := ExternalToolName(tenants.Tenant{Name: strings.Repeat("very long name ", 10)}, "create_appointment")
	require.LessOrEqual(t, len(long), maxToolName)
	require.True(t, strings.HasSuffix(long, "_create_appointment"))
}

func TestInternalToolName(t *testing.T) {
	got, ok := InternalToolName("old_name_create_appointment", assistant.Catalog())
	require.True(t, ok)
	require.Equal(t, assistant.ToolCreateAppointment, got)

	_, ok = InternalToolName("acme_book_flight", assistant.Catalog())
	require.False(t, ok)
}
