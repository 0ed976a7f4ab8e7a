package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/audit"
	"receptionist-platform/internal/metrics"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/internal/vapi"
	"receptionist-platform/pkg/logger"
)

var (
	ErrAlreadyProvisioned     = errors.New("provisioning: assistant already provisioned")
	ErrNotProvisioned         = errors.New("provisioning: assistant not provisioned")
	ErrProvisioningInProgress = errors.New("provisioning: another operation is running for this tenant")
)

// Steps named in StepError.
const (
	StepCreateTools     = "tool creation"
	StepCreateAssistant = "assistant creation"
	StepUpdateAssistant = "assistant update"
	StepUpdateTool      = "tool update"
)

// StepError is a platform failure during a named synchronizer step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("provisioning: %s failed: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Platform is the slice of the voice-platform control API the synchronizer needs.
// Assistant writes take the full tool-id list as a required argument.
type Platform interface {
	Configured() bool
	CreateAssistant(ctx context.Context, spec vapi.AssistantSpec, toolIDs []string) (vapi.Assistant, error)
	UpdateAssistant(ctx context.Context, id string, toolIDs []string, spec vapi.AssistantSpec) (vapi.Assistant, error)
	DeleteAssistant(ctx context.Context, id string) error
	CreateTool(ctx context.Context, spec vapi.ToolSpec) (vapi.Tool, error)
	UpdateTool(ctx context.Context, id string, fn vapi.FunctionUpdate) (vapi.Tool, error)
	DeleteTool(ctx context.Context, id string) error
}

type Options struct {
	// PublicBaseURL is where the platform reaches this system (no trailing slash).
	PublicBaseURL string
	// WebhookSecret is sent as the server secret on callbacks.
	WebhookSecret string
	// LockTTL bounds how long one tenant operation may hold the lock.
	LockTTL time.Duration
}

// Synchronizer keeps a tenant's assistant and tools in step with the voice platform.
//
// Every mutation runs under a per-tenant lock. Internal state is the source of truth
// for "is this tenant provisioned": a stored external assistant id.
type Synchronizer struct {
	platform   Platform
	assistants assistant.Repository
	tenants    tenants.Repository
	locker     Locker
	audit      *audit.Service
	opts       Options
	clock      func() time.Time
}

func New(platform Platform, assistants assistant.Repository, tenantRepo tenants.Repository, locker Locker, auditSvc *audit.Service, opts Options) *Synchronizer {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Synchronizer{
		platform:   platform,
		assistants: assistants,
		tenants:    tenantRepo,
		locker:     locker,
		audit:      auditSvc,
		opts:       opts,
		clock:      time.Now,
	}
}

// Patch is a partial assistant update. Nil fields are left unchanged.
type Patch struct {
	Name         *string                `json:"name"`
	Prompt       *string                `json:"prompt"`
	FirstMessage *string                `json:"first_message"`
	Language     *string                `json:"language"`
	Voice        *assistant.Voice       `json:"voice"`
	Model        *assistant.Model       `json:"model"`
	Transcriber  *assistant.Transcriber `json:"transcriber"`

	// ResetPrompt drops a custom prompt and returns to the compiled one.
	ResetPrompt bool `json:"reset_prompt"`

	// ToolsEnabled toggles tools by catalog name.
	ToolsEnabled map[string]bool `json:"tools_enabled"`
}

// ReconcileResult reports what ReconcileTools changed.
type ReconcileResult struct {
	Created []string `json:"created"`
	Failed  []string `json:"failed"`
	ToolIDs []string `json:"tool_ids"`
}

/* ===================== READS ===================== */

// Current returns the stored assistant, or the compiled defaults when none is stored yet.
func (s *Synchronizer) Current(ctx context.Context, tenantID string) (assistant.Assistant, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return assistant.Assistant{}, err
	}
	return s.load(ctx, t)
}

// Preview compiles the config that a push would send right now: the stored
// assistant's settings over the tenant's current profile. Falls back to the
// industry defaults when nothing is stored. Never calls the platform.
func (s *Synchronizer) Preview(ctx context.Context, tenantID string) (assistant.Config, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return assistant.Config{}, err
	}
	a, err := s.load(ctx, t)
	if err != nil {
		return assistant.Config{}, err
	}

	sel := selectionsFor(a, t)
	if !a.CustomPrompt {
		a.Prompt = assistant.CompilePrompt(withLanguage(t, a.Language), sel)
	}
	required := map[string][]assistant.FieldSelection{}
	for name, fields := range a.RequiredFields {
		required[name] = append([]assistant.FieldSelection(nil), fields...)
	}
	required[assistant.ToolCreateAppointment] = sel

	return assistant.Config{
		Name:           a.Name,
		Prompt:         a.Prompt,
		FirstMessage:   a.FirstMessage,
		Language:       a.Language,
		Voice:          a.Voice,
		Model:          a.Model,
		Transcriber:    a.Transcriber,
		Tools:          a.Tools,
		RequiredFields: required,
	}, nil
}

func (s *Synchronizer) load(ctx context.Context, t tenants.Tenant) (assistant.Assistant, error) {
	a, err := s.assistants.Get(ctx, t.ID)
	if errors.Is(err, assistant.ErrNotFound) {
		return assistant.DefaultConfigFor(t).Assistant(t.ID), nil
	}
	return a, err
}

/* ===================== PROVISION ===================== */

// Provision creates the tenant's tools and assistant on the platform.
//
// Tool creation failures are logged and skipped. If the assistant cannot be created,
// tool ids created so far are persisted so the next attempt reuses them.
func (s *Synchronizer) Provision(ctx context.Context, tenantID string) (assistant.Assistant, error) {
	var out assistant.Assistant
	err := s.run(ctx, "provision", tenantID, func(ctx context.Context) error {
		t, err := s.tenants.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		a, err := s.load(ctx, t)
		if err != nil {
			return err
		}
		if a.Provisioned() {
			return ErrAlreadyProvisioned
		}
		if err := assistant.ValidateTools(a.Tools).Err(); err != nil {
			return err
		}
		if !s.platform.Configured() {
			return vapi.ErrUnavailable
		}

		created, failed, lastErr := s.ensureTools(ctx, t, &a)
		if len(created) == 0 && len(failed) > 0 && len(activeToolIDs(a)) == 0 {
			return &StepError{Step: StepCreateTools, Err: lastErr}
		}

		ext, err := s.platform.CreateAssistant(ctx, s.assistantSpec(t, a), activeToolIDs(a))
		if err != nil {
			if len(created) > 0 {
				if _, serr := s.assistants.Save(ctx, a); serr != nil {
					logger.From(ctx).Error("persist partial tools failed", "tenant_id", tenantID, "err", serr)
				}
			}
			return &StepError{Step: StepCreateAssistant, Err: err}
		}

		a.ExternalID = ext.ID
		saved, err := s.assistants.Save(ctx, a)
		if err != nil {
			// The platform now holds an assistant we could not record. Surface it so
			// an operator can clean up by id.
			logger.From(ctx).Error("persist provisioned assistant failed",
				"tenant_id", tenantID, "external_assistant_id", ext.ID, "err", err)
			return err
		}
		out = saved

		s.record(ctx, audit.EventAssistantProvisioned, tenantID, ext.ID, "assistant provisioned", map[string]any{
			"tools_created": created,
			"tools_failed":  failed,
		})
		return nil
	})
	return out, err
}

// ensureTools creates every enabled tool that has no external id yet. Individual
// failures are logged and the batch continues.
func (s *Synchronizer) ensureTools(ctx context.Context, t tenants.Tenant, a *assistant.Assistant) (created, failed []string, lastErr error) {
	log := logger.From(ctx)
	for i := range a.Tools {
		tool := a.Tools[i]
		if !tool.Enabled || tool.ExternalID != "" {
			continue
		}
		ext, err := s.platform.CreateTool(ctx, s.toolSpec(t, tool, a.Language))
		if err != nil {
			log.Warn("tool creation failed, continuing", "tenant_id", t.ID, "tool", tool.Name, "err", err)
			failed = append(failed, tool.Name)
			lastErr = err
			continue
		}
		a.Tools[i].ExternalID = ext.ID
		created = append(created, tool.Name)
	}
	return created, failed, lastErr
}

/* ===================== UPDATE ===================== */

// Update applies p to the stored assistant and pushes the result. The push always
// resends the full current tool-id list.
//
// Local state is saved before the push; a failed push leaves the platform behind,
// and any later update re-sends everything.
func (s *Synchronizer) Update(ctx context.Context, tenantID string, p Patch) (assistant.Assistant, error) {
	var out assistant.Assistant
	err := s.run(ctx, "update", tenantID, func(ctx context.Context) error {
		t, err := s.tenants.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		a, err := s.load(ctx, t)
		if err != nil {
			return err
		}
		if err := applyPatch(&a, p); err != nil {
			return err
		}
		if !a.CustomPrompt {
			a.Prompt = assistant.CompilePrompt(withLanguage(t, a.Language), selectionsFor(a, t))
		}

		if a.Provisioned() && s.platform.Configured() {
			s.ensureTools(ctx, t, &a)
		}

		saved, err := s.assistants.Save(ctx, a)
		if err != nil {
			return err
		}
		out = saved

		if saved.Provisioned() {
			if err := s.push(ctx, t, saved); err != nil {
				return err
			}
		}
		s.record(ctx, audit.EventAssistantUpdated, tenantID, saved.ExternalID, "assistant updated", p)
		return nil
	})
	return out, err
}

func applyPatch(a *assistant.Assistant, p Patch) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return &assistant.ValidationError{Errors: []string{"name must not be empty"}}
		}
		a.Name = name
	}
	if p.FirstMessage != nil {
		a.FirstMessage = *p.FirstMessage
	}
	if p.Language != nil {
		lang := strings.TrimSpace(*p.Language)
		if lang == "" {
			lang = assistant.DefaultLanguage
		}
		a.Language = lang
		a.Transcriber.Language = strings.SplitN(lang, "-", 2)[0]
	}
	if p.Voice != nil {
		a.Voice = *p.Voice
	}
	if p.Model != nil {
		a.Model = *p.Model
	}
	if p.Transcriber != nil {
		a.Transcriber = *p.Transcriber
	}
	if p.ResetPrompt {
		a.CustomPrompt = false
	}
	if p.Prompt != nil {
		a.Prompt = *p.Prompt
		a.CustomPrompt = true
	}

	var errs []string
	for name, on := range p.ToolsEnabled {
		found := false
		for i := range a.Tools {
			if a.Tools[i].Name == name {
				a.Tools[i].Enabled = on
				found = true
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("unknown tool %q", name))
		}
	}
	if len(errs) > 0 {
		return &assistant.ValidationError{Errors: errs}
	}
	return nil
}

// push sends the assistant's settings with its full current tool-id list.
func (s *Synchronizer) push(ctx context.Context, t tenants.Tenant, a assistant.Assistant) error {
	if !s.platform.Configured() {
		return vapi.ErrUnavailable
	}
	if _, err := s.platform.UpdateAssistant(ctx, a.ExternalID, activeToolIDs(a), s.assistantSpec(t, a)); err != nil {
		return &StepError{Step: StepUpdateAssistant, Err: err}
	}
	return nil
}

/* ===================== DEPROVISION ===================== */

// Deprovision clears the internal references first, then deletes tools and the
// assistant on the platform. Delete failures are logged and swallowed.
func (s *Synchronizer) Deprovision(ctx context.Context, tenantID string) error {
	return s.run(ctx, "deprovision", tenantID, func(ctx context.Context) error {
		a, err := s.assistants.Get(ctx, tenantID)
		if errors.Is(err, assistant.ErrNotFound) {
			return ErrNotProvisioned
		}
		if err != nil {
			return err
		}
		if !a.Provisioned() {
			return ErrNotProvisioned
		}

		externalID := a.ExternalID
		toolIDs := a.ExternalToolIDs()

		a.ClearExternalIDs()
		if _, err := s.assistants.Save(ctx, a); err != nil {
			return err
		}

		log := logger.From(ctx).With("tenant_id", tenantID, "external_assistant_id", externalID)
		for _, id := range toolIDs {
			if err := s.platform.DeleteTool(ctx, id); err != nil {
				log.Warn("tool delete failed, continuing", "tool_id", id, "err", err)
			}
		}
		if err := s.platform.DeleteAssistant(ctx, externalID); err != nil {
			log.Warn("assistant delete failed", "err", err)
		}

		s.record(ctx, audit.EventAssistantDeprovisioned, tenantID, externalID, "assistant deprovisioned", map[string]any{
			"tool_ids": toolIDs,
		})
		return nil
	})
}

/* ===================== REQUIRED FIELDS ===================== */

// UpdateRequiredFields changes which fields a tool requires. For create_appointment
// the parameter schema is regenerated. On the platform only the tool's function block
// is updated, then the assistant is re-pushed with its full tool-id list.
func (s *Synchronizer) UpdateRequiredFields(ctx context.Context, tenantID, toolName string, fields []assistant.FieldSelection) (assistant.Assistant, error) {
	var out assistant.Assistant
	err := s.run(ctx, "update_required_fields", tenantID, func(ctx context.Context) error {
		if err := assistant.ValidateRequiredFields(toolName, fields).Err(); err != nil {
			return err
		}

		t, err := s.tenants.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		a, err := s.load(ctx, t)
		if err != nil {
			return err
		}
		tool, ok := a.Tool(toolName)
		if !ok {
			tool, _ = assistant.CatalogTool(toolName)
		}

		if toolName == assistant.ToolCreateAppointment {
			tool.Parameters = assistant.BuildCreateAppointmentSchema(fields)
		} else {
			req := make([]string, 0, len(fields))
			for _, f := range fields {
				req = append(req, assistant.ParamFor(f))
			}
			tool.Parameters.Required = req
		}
		a.SetTool(tool)

		if a.RequiredFields == nil {
			a.RequiredFields = map[string][]assistant.FieldSelection{}
		}
		a.RequiredFields[toolName] = append([]assistant.FieldSelection(nil), fields...)
		if !a.CustomPrompt {
			a.Prompt = assistant.CompilePrompt(withLanguage(t, a.Language), selectionsFor(a, t))
		}

		saved, err := s.assistants.Save(ctx, a)
		if err != nil {
			return err
		}
		out = saved

		if saved.Provisioned() {
			if !s.platform.Configured() {
				return vapi.ErrUnavailable
			}
			if tool.ExternalID != "" && !isDirect(tool) {
				fn := vapi.FunctionUpdate{
					Name:        ExternalToolName(t, tool.Name),
					Description: tool.Description,
					Parameters:  tool.Parameters,
				}
				if _, err := s.platform.UpdateTool(ctx, tool.ExternalID, fn); err != nil {
					return &StepError{Step: StepUpdateTool, Err: err}
				}
			}
			if err := s.push(ctx, t, saved); err != nil {
				return err
			}
		}

		s.record(ctx, audit.EventRequiredFieldsUpdated, tenantID, saved.ExternalID, "required fields updated", map[string]any{
			"tool":   toolName,
			"fields": fields,
		})
		return nil
	})
	return out, err
}

/* ===================== RECONCILE ===================== */

// ReconcileTools adds catalog tools the assistant is missing, creates every enabled
// tool that has no external id, and re-pushes the full tool-id list.
func (s *Synchronizer) ReconcileTools(ctx context.Context, tenantID string) (ReconcileResult, error) {
	var res ReconcileResult
	err := s.run(ctx, "reconcile_tools", tenantID, func(ctx context.Context) error {
		t, err := s.tenants.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		a, err := s.assistants.Get(ctx, tenantID)
		if errors.Is(err, assistant.ErrNotFound) {
			return ErrNotProvisioned
		}
		if err != nil {
			return err
		}
		if !a.Provisioned() {
			return ErrNotProvisioned
		}
		if !s.platform.Configured() {
			return vapi.ErrUnavailable
		}

		for _, ct := range assistant.Catalog() {
			if _, ok := a.Tool(ct.Name); ok {
				continue
			}
			if ct.Name == assistant.ToolCreateAppointment {
				ct.Parameters = assistant.BuildCreateAppointmentSchema(selectionsFor(a, t))
			}
			a.SetTool(ct)
		}

		res.Created, res.Failed, _ = s.ensureTools(ctx, t, &a)
		saved, err := s.assistants.Save(ctx, a)
		if err != nil {
			return err
		}
		res.ToolIDs = activeToolIDs(saved)

		if err := s.push(ctx, t, saved); err != nil {
			return err
		}
		s.record(ctx, audit.EventToolsReconciled, tenantID, saved.ExternalID, "tools reconciled", res)
		return nil
	})
	return res, err
}

/* ===================== HELPERS ===================== */

func (s *Synchronizer) run(ctx context.Context, op, tenantID string, fn func(ctx context.Context) error) error {
	start := s.clock()
	ctx = logger.With(ctx, logger.From(ctx).With("tenant_id", tenantID, "operation", op))

	unlock, err := s.locker.Lock(ctx, lockKey(tenantID), s.opts.LockTTL)
	if err == nil {
		err = func() error {
			defer unlock()
			return fn(ctx)
		}()
	}

	metrics.ProvisioningOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	metrics.ProvisioningDuration.WithLabelValues(op).Observe(s.clock().Sub(start).Seconds())
	if err != nil {
		logger.From(ctx).Warn("provisioning operation failed", "err", err)
	}
	return err
}

func (s *Synchronizer) record(ctx context.Context, typ audit.EventType, tenantID, externalID, msg string, details any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, typ, tenantID, externalID, audit.ActorFrom(ctx), msg, details); err != nil {
		logger.From(ctx).Warn("audit append failed", "tenant_id", tenantID, "err", err)
	}
}

// selectionsFor returns the create_appointment selection, falling back to the industry default.
func selectionsFor(a assistant.Assistant, t tenants.Tenant) []assistant.FieldSelection {
	if sel, ok := a.RequiredFields[assistant.ToolCreateAppointment]; ok {
		return sel
	}
	return assistant.DefaultConfigFor(t).RequiredFields[assistant.ToolCreateAppointment]
}

func withLanguage(t tenants.Tenant, lang string) tenants.Tenant {
	if lang != "" {
		t.Language = lang
	}
	return t
}
