package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/extract"
	"github.com/clinicflow/scheduling-ai/internal/jobs"
	"github.com/clinicflow/scheduling-ai/internal/notify"
	"github.com/clinicflow/scheduling-ai/internal/observability/metrics"
	"github.com/clinicflow/scheduling-ai/internal/patients"
	"github.com/clinicflow/scheduling-ai/internal/reminders"
	"github.com/clinicflow/scheduling-ai/internal/session"
	"github.com/clinicflow/scheduling-ai/internal/slots"
	"github.com/clinicflow/scheduling-ai/internal/validate"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// ConfirmationSender delivers a booking confirmation to the patient.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, b bookings.Booking) error
}

// ReminderScheduler creates and cancels the tiered reminders for a booking.
type ReminderScheduler interface {
	Schedule(ctx context.Context, b bookings.Booking) ([]reminders.Event, error)
	CancelForBooking(ctx context.Context, bookingID string) error
}

// JobEnqueuer hands follow-up work to the async queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

var _ ConfirmationSender = (*notify.Service)(nil)
var _ ReminderScheduler = (*reminders.Scheduler)(nil)
var _ JobEnqueuer = (*jobs.Dispatcher)(nil)

// Config tunes the engine.
type Config struct {
	RetryThreshold      int
	CollaboratorTimeout time.Duration
	SlotLookahead       time.Duration
	SlotTopN            int
}

// Deps carries the engine's collaborators. Sessions, Patients, Finder,
// Bookings, and Extractor are required; the rest degrade to no-ops.
type Deps struct {
	Sessions  session.Store
	Patients  patients.Repository
	Finder    slots.Finder
	Bookings  bookings.Repository
	Extractor extract.Extractor
	Notifier  ConfirmationSender
	Reminders ReminderScheduler
	Jobs      JobEnqueuer
	Handoffs  HandoffStore
	Metrics   *metrics.WorkflowMetrics
	Logger    *logging.Logger
}

// Reply is the engine's answer to one inbound message.
type Reply struct {
	SessionID string        `json:"session_id"`
	Stage     session.Stage `json:"stage"`
	Message   string        `json:"message"`
	Offers    []slots.Offer `json:"offers,omitempty"`
	BookingID string        `json:"booking_id,omitempty"`
	Done      bool          `json:"done"`
	Escalated bool          `json:"escalated"`
}

// Engine drives scheduling sessions through the workflow stage machine.
// One inbound message may advance the session through several machine
// stages before a reply is produced.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *logging.Logger
	tracer trace.Tracer
	now    func() time.Time

	locks sync.Map // session ID -> *sync.Mutex
}

// NewEngine creates a workflow engine.
func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Sessions == nil {
		panic("workflow: session store required")
	}
	if deps.Patients == nil {
		panic("workflow: patient repository required")
	}
	if deps.Finder == nil {
		panic("workflow: slot finder required")
	}
	if deps.Bookings == nil {
		panic("workflow: booking repository required")
	}
	if deps.Extractor == nil {
		panic("workflow: extractor required")
	}
	if cfg.RetryThreshold <= 0 {
		cfg.RetryThreshold = 3
	}
	if cfg.SlotTopN <= 0 {
		cfg.SlotTopN = 5
	}
	if cfg.SlotLookahead <= 0 {
		cfg.SlotLookahead = 14 * 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("clinicflow/workflow"),
		now:    time.Now,
	}
}

// StartSession opens a new session and returns the greeting.
func (e *Engine) StartSession(ctx context.Context) (*Reply, error) {
	s := session.New()
	if err := e.deps.Sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("workflow: create session: %w", err)
	}
	e.logger.Info("workflow: session started", "session_id", s.ID)
	return &Reply{
		SessionID: s.ID,
		Stage:     s.Stage,
		Message:   greetingMessage,
	}, nil
}

// GetSession returns the current session state.
func (e *Engine) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return e.deps.Sessions.Get(ctx, id)
}

// CancelBooking cancels a confirmed booking, frees its calendar time, and
// drops any reminders that have not gone out yet.
func (e *Engine) CancelBooking(ctx context.Context, bookingID string) (*bookings.Booking, error) {
	b, err := e.deps.Bookings.Cancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := e.deps.Finder.Release(ctx, slots.OfferID(b.Provider, b.Start, b.Duration)); err != nil {
		e.logger.Error("workflow: slot release failed", "booking_id", b.ID, "error", err)
	}
	if e.deps.Reminders != nil {
		if err := e.deps.Reminders.CancelForBooking(ctx, b.ID); err != nil {
			e.logger.Error("workflow: reminder cancel failed", "booking_id", b.ID, "error", err)
		}
	}
	e.logger.Info("workflow: booking cancelled", "booking_id", b.ID)
	return b, nil
}

// HandleMessage processes one patient message. Calls for the same session
// are serialized; different sessions proceed concurrently.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, message string) (*Reply, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.HandleMessage",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	mu := e.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	started := e.now()
	s, err := e.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.stage", string(s.Stage)))

	// A session only survives its terminal reply when cleanup failed;
	// answer without re-running any stage.
	if s.Stage == session.StageDone {
		return &Reply{
			SessionID: s.ID,
			Stage:     s.Stage,
			Message:   doneAlreadyMessage,
			BookingID: s.Appointment.BookingID,
			Done:      true,
		}, nil
	}
	if s.Escalated {
		return &Reply{
			SessionID: s.ID,
			Stage:     s.Stage,
			Message:   escalatedMessage,
			Escalated: true,
		}, nil
	}

	res := e.extractFields(ctx, message)
	app := e.applyFields(s, res)

	entered := false
	var reply *Reply
	for i := 0; i <= len(session.Order); i++ {
		from := s.Stage
		var werr *Error
		reply, werr = e.runStage(ctx, s, message, res, app, entered)
		if werr != nil {
			reply = e.failStage(ctx, s, message, werr)
			break
		}
		if reply != nil {
			break
		}
		entered = true
		e.deps.Metrics.ObserveTransition(string(from), string(s.Stage))
	}
	if reply == nil {
		// The loop bound tripped; treat as an internal fault.
		e.logger.Error("workflow: stage loop did not settle", "session_id", s.ID, "stage", string(s.Stage))
		reply = e.failStage(ctx, s, message, stageErr(KindUnrecoverable, s.Stage, errors.New("stage loop did not settle")))
	}

	if s.Stage.Terminal() {
		// The conversation is over; the reply carries everything the
		// caller still needs.
		if derr := e.deps.Sessions.Delete(ctx, s.ID); derr != nil {
			e.logger.Error("workflow: session cleanup failed", "session_id", s.ID, "error", derr)
			if serr := e.deps.Sessions.Save(ctx, s); serr != nil {
				e.logger.Error("workflow: save after failed cleanup", "session_id", s.ID, "error", serr)
			}
		} else {
			e.locks.Delete(s.ID)
		}
	} else if err := e.deps.Sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("workflow: save session: %w", err)
	}
	e.deps.Metrics.ObserveMessageLatency(string(reply.Stage), e.now().Sub(started).Seconds())
	return reply, nil
}

func (e *Engine) lockFor(sessionID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *Engine) collabCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CollaboratorTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.CollaboratorTimeout)
}

func (e *Engine) extractFields(ctx context.Context, message string) extract.Result {
	cctx, cancel := e.collabCtx(ctx)
	defer cancel()
	res, err := e.deps.Extractor.Extract(cctx, message)
	if err != nil {
		e.logger.Warn("workflow: extraction failed, proceeding without fields", "error", err)
		return extract.Result{}
	}
	return res
}

// fieldApplication records which extracted fields were accepted into the
// session and which failed validation.
type fieldApplication struct {
	applied map[string]string
	errs    map[string]error
}

func (a fieldApplication) anyApplied(keys ...string) bool {
	for _, k := range keys {
		if _, ok := a.applied[k]; ok {
			return true
		}
	}
	return false
}

func (a fieldApplication) firstErr(keys ...string) error {
	for _, k := range keys {
		if err, ok := a.errs[k]; ok {
			return err
		}
	}
	return nil
}

func (e *Engine) applyFields(s *session.Session, res extract.Result) fieldApplication {
	app := fieldApplication{
		applied: make(map[string]string),
		errs:    make(map[string]error),
	}
	accept := func(key, value string) {
		app.applied[key] = value
	}

	if v, ok := res.Get(extract.FieldName); ok {
		if err := validate.Name(v); err != nil {
			app.errs[extract.FieldName] = err
		} else {
			s.Patient.Name = validate.NormalizeName(v)
			accept(extract.FieldName, s.Patient.Name)
		}
	}
	if v, ok := res.Get(extract.FieldDOB); ok {
		if t, err := validate.DateOfBirth(v); err != nil {
			app.errs[extract.FieldDOB] = err
		} else {
			s.Patient.DateOfBirth = validate.NormalizeDOB(t)
			accept(extract.FieldDOB, s.Patient.DateOfBirth)
		}
	}
	if v, ok := res.Get(extract.FieldPhone); ok {
		if normalized, err := validate.Phone(v); err != nil {
			app.errs[extract.FieldPhone] = err
		} else {
			s.Patient.Phone = normalized
			accept(extract.FieldPhone, normalized)
		}
	}
	if v, ok := res.Get(extract.FieldEmail); ok {
		if err := validate.Email(v); err != nil {
			app.errs[extract.FieldEmail] = err
		} else {
			s.Patient.Email = v
			accept(extract.FieldEmail, v)
		}
	}
	if v, ok := res.Get(extract.FieldPatientType); ok {
		switch v {
		case "new":
			s.Patient.Type = session.PatientTypeNew
			accept(extract.FieldPatientType, v)
		case "returning":
			s.Patient.Type = session.PatientTypeReturning
			accept(extract.FieldPatientType, v)
		}
	}
	if v, ok := res.Get(extract.FieldProvider); ok {
		s.Patient.ProviderPreference = v
		accept(extract.FieldProvider, v)
	}
	if v, ok := res.Get(extract.FieldSelfPay); ok && v == "true" {
		s.Patient.SelfPay = true
		accept(extract.FieldSelfPay, v)
	}
	if v, ok := res.Get(extract.FieldCarrier); ok {
		if normalized, err := validate.InsuranceCarrier(v); err != nil {
			app.errs[extract.FieldCarrier] = err
		} else {
			s.Patient.Insurance.Carrier = normalized
			accept(extract.FieldCarrier, normalized)
		}
	}
	if v, ok := res.Get(extract.FieldMemberID); ok {
		if err := validate.InsuranceMemberID(v); err != nil {
			app.errs[extract.FieldMemberID] = err
		} else {
			s.Patient.Insurance.MemberID = strings.ToUpper(v)
			accept(extract.FieldMemberID, v)
		}
	}
	if v, ok := res.Get(extract.FieldGroupNumber); ok {
		if err := validate.InsuranceGroupNumber(v); err != nil {
			app.errs[extract.FieldGroupNumber] = err
		} else {
			s.Patient.Insurance.GroupNumber = strings.ToUpper(v)
			accept(extract.FieldGroupNumber, v)
		}
	}
	if v, ok := res.Get(extract.FieldDayPreference); ok {
		if days := parseWeekdays(v); len(days) > 0 {
			s.Appointment.DayPreference = days
			accept(extract.FieldDayPreference, v)
		}
	}
	if v, ok := res.Get(extract.FieldTimePreference); ok {
		s.Appointment.TimePreference = v
		accept(extract.FieldTimePreference, v)
	}
	return app
}

func (e *Engine) runStage(ctx context.Context, s *session.Session, message string, res extract.Result, app fieldApplication, entered bool) (*Reply, *Error) {
	switch s.Stage {
	case session.StageGreeting:
		s.Advance(session.StageCollectIdentity)
		return nil, nil
	case session.StageCollectIdentity:
		return e.handleCollectIdentity(s, app, entered)
	case session.StageLookupPatient:
		return e.handleLookupPatient(ctx, s)
	case session.StageClassifyType:
		return e.handleClassifyType(s)
	case session.StageFindSlots:
		return e.handleFindSlots(ctx, s)
	case session.StagePresentSlots:
		return e.handlePresentSlots(ctx, s, res, app)
	case session.StageConfirmSlot:
		return e.handleConfirmSlot(ctx, s, res)
	case session.StageCollectInsurance:
		return e.handleCollectInsurance(s, app, entered)
	case session.StageCreateBooking:
		return e.handleCreateBooking(ctx, s)
	case session.StageNotify:
		return e.handleNotify(ctx, s)
	case session.StageScheduleReminders:
		return e.handleScheduleReminders(ctx, s)
	case session.StageExportData:
		return e.handleExportData(ctx, s)
	default:
		return nil, stageErr(KindUnrecoverable, s.Stage, fmt.Errorf("no handler for stage %s", s.Stage))
	}
}

func (e *Engine) handleCollectIdentity(s *session.Session, app fieldApplication, entered bool) (*Reply, *Error) {
	if err := app.firstErr(extract.FieldName, extract.FieldDOB, extract.FieldPhone, extract.FieldEmail); err != nil {
		return nil, validationErr(s.Stage, err)
	}

	var missing []string
	if s.Patient.Name == "" {
		missing = append(missing, "your full name")
	}
	if s.Patient.DateOfBirth == "" {
		missing = append(missing, "your date of birth (MM/DD/YYYY)")
	}
	if len(missing) == 0 {
		s.Advance(session.StageLookupPatient)
		return nil, nil
	}

	prompt := "To look up your record I need " + strings.Join(missing, " and ") + "."
	if entered || app.anyApplied(extract.FieldName, extract.FieldDOB) {
		return e.reply(s, prompt), nil
	}
	return nil, validationErr(s.Stage, errors.New("no identity fields recognized"))
}

func (e *Engine) handleLookupPatient(ctx context.Context, s *session.Session) (*Reply, *Error) {
	cctx, cancel := e.collabCtx(ctx)
	defer cancel()

	identity := patients.Identity{
		Name:        s.Patient.Name,
		DateOfBirth: s.Patient.DateOfBirth,
		Phone:       s.Patient.Phone,
	}

	p, err := e.deps.Patients.Lookup(cctx, identity)
	switch {
	case err == nil:
		s.Patient.PatientID = p.ID
		if s.Patient.Type == session.PatientTypeUnknown {
			s.Patient.Type = session.PatientTypeReturning
		}
		if s.Patient.Phone == "" {
			s.Patient.Phone = p.Phone
		}
		if s.Patient.Email == "" {
			s.Patient.Email = p.Email
		}
		e.logger.Info("workflow: patient record found", "session_id", s.ID, "patient_id", p.ID)
	case errors.Is(err, patients.ErrPatientNotFound):
		if s.Patient.Type == session.PatientTypeUnknown {
			s.Patient.Type = session.PatientTypeNew
		}
		created, cerr := e.deps.Patients.Create(cctx, identity, s.Patient.Email)
		if cerr != nil {
			return nil, transportErr(s.Stage, cerr)
		}
		s.Patient.PatientID = created.ID
		e.logger.Info("workflow: patient record created", "session_id", s.ID, "patient_id", created.ID)
	default:
		return nil, transportErr(s.Stage, err)
	}

	s.Advance(session.StageClassifyType)
	return nil, nil
}

func (e *Engine) handleClassifyType(s *session.Session) (*Reply, *Error) {
	if s.Patient.Type == session.PatientTypeReturning {
		s.Appointment.Type = slots.TypeFollowUp
	} else {
		s.Appointment.Type = slots.TypeNewPatient
	}
	s.Advance(session.StageFindSlots)
	return nil, nil
}

func (e *Engine) slotConstraints(s *session.Session) slots.Constraints {
	c := slots.Constraints{
		Provider:   s.Patient.ProviderPreference,
		NotBefore:  e.now(),
		Lookahead:  e.cfg.SlotLookahead,
		DaysOfWeek: s.Appointment.DayPreference,
	}
	switch s.Appointment.TimePreference {
	case "morning":
		c.BeforeTime = "12:00"
	case "afternoon":
		c.AfterTime = "12:00"
	}
	return c
}

func (e *Engine) handleFindSlots(ctx context.Context, s *session.Session) (*Reply, *Error) {
	cctx, cancel := e.collabCtx(ctx)
	defer cancel()

	offers, err := e.deps.Finder.Query(cctx, s.Appointment.Type, e.slotConstraints(s))
	if err != nil {
		if errors.Is(err, slots.ErrNoSlots) {
			// Relax the filters so the retry sees the whole calendar.
			s.Appointment.DayPreference = nil
			s.Appointment.TimePreference = ""
			s.Patient.ProviderPreference = ""
			return nil, stageErr(KindNotFound, s.Stage, err)
		}
		return nil, transportErr(s.Stage, err)
	}

	if len(offers) > e.cfg.SlotTopN {
		offers = offers[:e.cfg.SlotTopN]
	}
	s.Appointment.Offered = offers
	s.Appointment.OfferGen++
	s.Advance(session.StagePresentSlots)

	r := e.reply(s, formatOffers(offers))
	r.Offers = offers
	return r, nil
}

func (e *Engine) handlePresentSlots(ctx context.Context, s *session.Session, res extract.Result, app fieldApplication) (*Reply, *Error) {
	if choice, ok := res.Get(extract.FieldSlotChoice); ok {
		n, err := strconv.Atoi(choice)
		if err != nil || n < 1 || n > len(s.Appointment.Offered) {
			return nil, validationErr(s.Stage, fmt.Errorf("slot choice %q is out of range", choice))
		}
		chosen := s.Appointment.Offered[n-1]
		s.Appointment.Confirmed = &chosen
		s.Advance(session.StageConfirmSlot)
		return e.reply(s, confirmPrompt(chosen)), nil
	}

	if conf, ok := res.Get(extract.FieldConfirm); ok && conf == "no" {
		// Rejection: look again, honoring any new preferences.
		return e.requeryOffers(ctx, s, "No problem.")
	}

	if app.anyApplied(extract.FieldDayPreference, extract.FieldTimePreference, extract.FieldProvider) {
		return e.requeryOffers(ctx, s, "Sure, let me check those times.")
	}

	return nil, validationErr(s.Stage, errors.New("no slot choice recognized"))
}

// requeryOffers refreshes the offer list in place. Superseded offers are
// invalidated by the generation bump.
func (e *Engine) requeryOffers(ctx context.Context, s *session.Session, lead string) (*Reply, *Error) {
	cctx, cancel := e.collabCtx(ctx)
	defer cancel()

	offers, err := e.deps.Finder.Query(cctx, s.Appointment.Type, e.slotConstraints(s))
	if err != nil {
		if errors.Is(err, slots.ErrNoSlots) {
			s.Appointment.DayPreference = nil
			s.Appointment.TimePreference = ""
			s.Patient.ProviderPreference = ""
			return nil, stageErr(KindNotFound, s.Stage, err)
		}
		return nil, transportErr(s.Stage, err)
	}
	if len(offers) > e.cfg.SlotTopN {
		offers = offers[:e.cfg.SlotTopN]
	}
	s.Appointment.Offered = offers
	s.Appointment.OfferGen++
	s.Appointment.Confirmed = nil

	r := e.reply(s, strings.TrimSpace(lead+" "+formatOffers(offers)))
	r.Offers = offers
	return r, nil
}

func (e *Engine) handleConfirmSlot(ctx context.Context, s *session.Session, res extract.Result) (*Reply, *Error) {
	if choice, ok := res.Get(extract.FieldSlotChoice); ok {
		n, err := strconv.Atoi(choice)
		if err != nil || n < 1 || n > len(s.Appointment.Offered) {
			return nil, validationErr(s.Stage, fmt.Errorf("slot choice %q is out of range", choice))
		}
		chosen := s.Appointment.Offered[n-1]
		s.Appointment.Confirmed = &chosen
		return e.reply(s, confirmPrompt(chosen)), nil
	}

	conf, ok := res.Get(extract.FieldConfirm)
	if !ok {
		return nil, validationErr(s.Stage, errors.New("expected a yes or no"))
	}

	if conf == "no" {
		s.Advance(session.StagePresentSlots)
		s.Appointment.Confirmed = nil
		r := e.reply(s, "No problem. "+formatOffers(s.Appointment.Offered))
		r.Offers = s.Appointment.Offered
		return r, nil
	}

	if s.Appointment.Confirmed == nil {
		return nil, validationErr(s.Stage, errors.New("no slot selected"))
	}

	cctx, cancel := e.collabCtx(ctx)
	defer cancel()
	err := e.deps.Finder.Reserve(cctx, s.Appointment.Confirmed.ID)
	if err != nil {
		if errors.Is(err, slots.ErrSlotUnavailable) {
			// Lost the race; fall back to fresh offers.
			s.Advance(session.StagePresentSlots)
			s.Appointment.Confirmed = nil
			reply, werr := e.requeryOffers(ctx, s, "I'm sorry, that time was just taken.")
			if werr != nil {
				return nil, werr
			}
			s.RecordFailure()
			e.deps.Metrics.ObserveFailure(string(session.StageConfirmSlot))
			return reply, nil
		}
		return nil, transportErr(s.Stage, err)
	}

	if e.needsInsurance(s) {
		s.Advance(session.StageCollectInsurance)
		return nil, nil
	}
	s.Advance(session.StageCreateBooking)
	return nil, nil
}

func (e *Engine) needsInsurance(s *session.Session) bool {
	if !s.Appointment.Type.RequiresInsurance() || s.Patient.SelfPay {
		return false
	}
	ins := s.Patient.Insurance
	return ins.Carrier == "" || ins.MemberID == ""
}

func (e *Engine) handleCollectInsurance(s *session.Session, app fieldApplication, entered bool) (*Reply, *Error) {
	if err := app.firstErr(extract.FieldCarrier, extract.FieldMemberID, extract.FieldGroupNumber); err != nil {
		return nil, validationErr(s.Stage, err)
	}

	if !e.needsInsurance(s) {
		s.Advance(session.StageCreateBooking)
		return nil, nil
	}

	var missing []string
	if s.Patient.Insurance.Carrier == "" {
		missing = append(missing, "your insurance carrier")
	}
	if s.Patient.Insurance.MemberID == "" {
		missing = append(missing, "your member ID")
	}

	prompt := "Since this is a new patient visit I need your insurance details. Please share " +
		strings.Join(missing, " and ") + ", or let me know if you'd prefer to self-pay."
	if entered || app.anyApplied(extract.FieldCarrier, extract.FieldMemberID, extract.FieldSelfPay) {
		return e.reply(s, prompt), nil
	}
	return nil, validationErr(s.Stage, errors.New("no insurance fields recognized"))
}

func (e *Engine) handleCreateBooking(ctx context.Context, s *session.Session) (*Reply, *Error) {
	chosen := s.Appointment.Confirmed
	if chosen == nil {
		return nil, stageErr(KindUnrecoverable, s.Stage, errors.New("no confirmed slot"))
	}

	cctx, cancel := e.collabCtx(ctx)
	defer cancel()

	b, err := e.deps.Bookings.CreateForSession(cctx, bookings.Booking{
		SessionID:   s.ID,
		PatientID:   s.Patient.PatientID,
		PatientName: s.Patient.Name,
		Provider:    chosen.Provider,
		Start:       chosen.Start,
		Duration:    chosen.Duration,
		Type:        s.Appointment.Type,
		Phone:       s.Patient.Phone,
		Email:       s.Patient.Email,
	})
	if err != nil {
		return nil, transportErr(s.Stage, err)
	}

	s.Appointment.BookingID = b.ID
	e.deps.Metrics.ObserveBooking(string(s.Appointment.Type))
	e.logger.Info("workflow: booking created", "session_id", s.ID, "booking_id", b.ID)
	s.Advance(session.StageNotify)
	return nil, nil
}

// loadBooking fetches the session's booking for the post-booking stages.
func (e *Engine) loadBooking(ctx context.Context, s *session.Session) (*bookings.Booking, error) {
	if s.Appointment.BookingID == "" {
		return nil, errors.New("workflow: session has no booking")
	}
	return e.deps.Bookings.Get(ctx, s.Appointment.BookingID)
}

func (e *Engine) handleNotify(ctx context.Context, s *session.Session) (*Reply, *Error) {
	if e.deps.Notifier != nil {
		b, err := e.loadBooking(ctx, s)
		if err != nil {
			return nil, transportErr(s.Stage, err)
		}
		cctx, cancel := e.collabCtx(ctx)
		err = e.deps.Notifier.SendConfirmation(cctx, *b)
		cancel()
		if err != nil {
			// The booking exists; never hold it hostage to delivery. The
			// final reply tells the patient nothing was sent.
			s.Appointment.NotifyFailed = true
			e.logger.Error("workflow: confirmation delivery failed", "session_id", s.ID, "booking_id", b.ID, "error", err)
			e.deps.Metrics.ObserveNotification("all", "failed")
		} else {
			e.deps.Metrics.ObserveNotification("all", "ok")
		}
	}
	s.Advance(session.StageScheduleReminders)
	return nil, nil
}

func (e *Engine) handleScheduleReminders(ctx context.Context, s *session.Session) (*Reply, *Error) {
	if e.deps.Reminders != nil {
		b, err := e.loadBooking(ctx, s)
		if err != nil {
			return nil, transportErr(s.Stage, err)
		}
		if _, err := e.deps.Reminders.Schedule(ctx, *b); err != nil {
			e.logger.Error("workflow: reminder scheduling failed", "session_id", s.ID, "booking_id", b.ID, "error", err)
		}
	}
	s.Advance(session.StageExportData)
	return nil, nil
}

func (e *Engine) handleExportData(ctx context.Context, s *session.Session) (*Reply, *Error) {
	if e.deps.Jobs != nil {
		job := jobs.Job{
			Kind:      jobs.KindExport,
			BookingID: s.Appointment.BookingID,
			SessionID: s.ID,
		}
		if err := e.deps.Jobs.Enqueue(ctx, job); err != nil {
			// The export retry worker sweeps unexported bookings.
			e.logger.Error("workflow: export enqueue failed", "session_id", s.ID, "error", err)
		}
	}
	s.Advance(session.StageDone)

	r := e.reply(s, doneMessage(s))
	r.BookingID = s.Appointment.BookingID
	r.Done = true
	return r, nil
}

// failStage books a failure against the current stage and escalates once
// the retry budget is spent.
func (e *Engine) failStage(ctx context.Context, s *session.Session, lastMessage string, werr *Error) *Reply {
	e.deps.Metrics.ObserveFailure(string(werr.Stage))
	e.logger.Warn("workflow: stage failure",
		"session_id", s.ID, "stage", string(werr.Stage), "kind", string(werr.Kind), "error", werr.Err)

	if werr.Recoverable() {
		count := s.RecordFailure()
		if count < e.cfg.RetryThreshold {
			return e.reply(s, retryPrompt(s, werr))
		}
	}
	return e.escalate(ctx, s, lastMessage, werr)
}

func (e *Engine) escalate(ctx context.Context, s *session.Session, lastMessage string, werr *Error) *Reply {
	failedStage := s.Stage
	s.Escalate()
	e.deps.Metrics.ObserveEscalation(string(failedStage), string(werr.Kind))
	e.logger.Error("workflow: session escalated",
		"session_id", s.ID, "stage", string(failedStage), "reason", werr.Error())

	// A reservation held without a booking would block the slot forever.
	if s.Appointment.Confirmed != nil && s.Appointment.BookingID == "" {
		if err := e.deps.Finder.Release(ctx, s.Appointment.Confirmed.ID); err != nil {
			e.logger.Error("workflow: reservation release failed", "session_id", s.ID, "error", err)
		}
	}

	if e.deps.Handoffs != nil {
		payload := &HandoffPayload{
			SessionID:      s.ID,
			FailedStage:    failedStage,
			Reason:         werr.Error(),
			LastMessage:    lastMessage,
			Patient:        s.Patient,
			Appointment:    s.Appointment,
			RetriesByStage: s.Retries,
		}
		if err := e.deps.Handoffs.Put(ctx, payload); err != nil {
			e.logger.Error("workflow: handoff persist failed", "session_id", s.ID, "error", err)
		}
	}

	r := e.reply(s, escalatedMessage)
	r.Escalated = true
	return r
}

func (e *Engine) reply(s *session.Session, msg string) *Reply {
	return &Reply{
		SessionID: s.ID,
		Stage:     s.Stage,
		Message:   msg,
	}
}

// ---------- patient-facing copy ----------

const greetingMessage = "Hello! Welcome to " + notify.ClinicName + ". " +
	"I can help you schedule an appointment. May I have your full name and date of birth (MM/DD/YYYY)?"

const escalatedMessage = "I'm having trouble completing your request, so I'm connecting you with our staff. " +
	"Someone will reach out shortly, or you can call us at " + notify.ClinicPhone + "."

const doneAlreadyMessage = "Your appointment is already booked. If you need to make changes, call us at " +
	notify.ClinicPhone + "."

func doneMessage(s *session.Session) string {
	chosen := s.Appointment.Confirmed
	delivery := "We've sent the details to your contact info and will text you reminders before the visit."
	if s.Appointment.NotifyFailed {
		delivery = "We couldn't reach you by email or text, so please note your confirmation ID. " +
			"Call us at " + notify.ClinicPhone + " with any questions."
	}
	return fmt.Sprintf("You're all set, %s! Your %s with %s is booked for %s. "+
		"Confirmation ID: %s. %s",
		firstName(s.Patient.Name),
		strings.ToLower(s.Appointment.Type.Label()),
		chosen.Provider,
		formatSlotTime(chosen.Start),
		s.Appointment.BookingID,
		delivery)
}

func confirmPrompt(o slots.Offer) string {
	return fmt.Sprintf("You picked the %s on %s with %s. Shall I book it? (yes/no)",
		strings.ToLower(o.Type.Label()), formatSlotTime(o.Start), o.Provider)
}

func formatOffers(offers []slots.Offer) string {
	var b strings.Builder
	b.WriteString("Here are the next available times:\n")
	for i, o := range offers {
		fmt.Fprintf(&b, "%d. %s with %s\n", i+1, formatSlotTime(o.Start), o.Provider)
	}
	b.WriteString("Reply with the number that works for you.")
	return b.String()
}

func formatSlotTime(t time.Time) string {
	return t.Format("Monday, January 2 at 3:04 PM")
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// parseWeekdays reads the comma-joined day list produced by extraction.
func parseWeekdays(v string) []time.Weekday {
	var days []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(v, ",") {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	return days
}

func retryPrompt(s *session.Session, werr *Error) string {
	switch s.Stage {
	case session.StageCollectIdentity:
		return "I'm sorry, I didn't catch that. Could you share your full name and date of birth (MM/DD/YYYY)?"
	case session.StageFindSlots, session.StagePresentSlots:
		if werr.Kind == KindNotFound {
			return "I couldn't find any openings matching your preferences in the next two weeks. " +
				"Could you share other days or times that work? I can also check the full calendar."
		}
		return "Sorry, I didn't catch which option you'd like. Please reply with the number of the time that works."
	case session.StageConfirmSlot:
		return "Just to confirm: should I book that time? Please reply yes or no."
	case session.StageCollectInsurance:
		return "I couldn't verify those insurance details. Please share your carrier and member ID as they appear on your card, or tell me if you'd prefer to self-pay."
	default:
		return "Something went wrong on our end. Let's try that again."
	}
}
