package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"qrticket/internal/codegen"
	"qrticket/internal/redeem"
	"qrticket/internal/scanner"
	"qrticket/internal/status"
	"qrticket/models"
	"qrticket/monitoring"
)

// Messages the server pushes to a station on top of the camera protocol.
const (
	MsgWelcome       = "welcome"
	MsgAttached      = "attached"
	MsgDetached      = "detached"
	MsgTicketChanged = "ticket_changed"

	SourceCamera = "camera"
	SourceManual = "manual"

	stationOutbox = 32
)

var stationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,64}$`)

func NewStationID() string {
	return "station_" + uuid.New().String()
}

func IsValidStationID(id string) bool {
	return stationIDPattern.MatchString(id)
}

type ScanConfig struct {
	Debounce      time.Duration
	Cooldown      time.Duration
	FrameInterval time.Duration
	OpenTimeout   time.Duration
	HistorySize   int
}

// OutcomeMessage is the payload of an outcome pushed to a station.
type OutcomeMessage struct {
	Source  string          `json:"source"`
	Outcome *models.Outcome `json:"outcome"`
	Message string          `json:"message"`
	Cue     redeem.Cue      `json:"cue"`
}

type ScanService struct {
	store   redeem.TicketStore
	history redeem.History
	changes ChangeSource
	monitor *monitoring.Monitor
	cfg     ScanConfig
	now     func() time.Time
}

// NewScanService builds the validation side. changes may be nil, in which case
// stations receive no ticket_changed pushes.
func NewScanService(store redeem.TicketStore, history redeem.History, changes ChangeSource, monitor *monitoring.Monitor, cfg ScanConfig) *ScanService {
	if cfg.Debounce <= 0 {
		cfg.Debounce = scanner.DefaultDebounce
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = scanner.DefaultFrameInterval
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = redeem.DefaultHistorySize
	}
	if history == nil {
		history = redeem.NewMemoryHistory(cfg.HistorySize)
	}
	return &ScanService{
		store:   store,
		history: history,
		changes: changes,
		monitor: monitor,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Validate checks one code outside of any station, e.g. typed in by hand.
func (s *ScanService) Validate(ctx context.Context, code string) (*OutcomeMessage, error) {
	v := redeem.NewValidator(s.store,
		redeem.WithHistory(s.history),
		redeem.WithStation("api"),
		redeem.WithClock(s.now),
	)
	return s.validate(ctx, v, code, SourceManual)
}

func (s *ScanService) History(ctx context.Context, n int) ([]models.ScanRecord, error) {
	if n <= 0 || n > s.cfg.HistorySize {
		n = s.cfg.HistorySize
	}
	return s.history.Recent(ctx, n)
}

func (s *ScanService) validate(ctx context.Context, v *redeem.Validator, code, source string) (*OutcomeMessage, error) {
	started := time.Now()
	o, err := v.Validate(ctx, code)
	if err != nil {
		if errors.Is(err, status.ErrBusy) {
			s.monitor.TrackDroppedScan()
		}
		return nil, err
	}
	s.monitor.TrackScan(string(o.Kind), source, time.Since(started))

	return &OutcomeMessage{
		Source:  source,
		Outcome: o,
		Message: redeem.Message(o),
		Cue:     redeem.CueFor(o),
	}, nil
}

// ServeStation drives one scanning station over conn until it disconnects or
// ctx is cancelled.
func (s *ScanService) ServeStation(ctx context.Context, conn *websocket.Conn, stationID string) error {
	if !IsValidStationID(stationID) {
		stationID = NewStationID()
	}
	log := slog.With("station", stationID)

	helloCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	cam, err := scanner.NewRemoteCamera(helloCtx, conn)
	cancel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("station handshake: %w", err)
	}
	defer cam.Close()

	s.monitor.TrackStation(1)
	defer s.monitor.TrackStation(-1)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	st := &station{
		id:  stationID,
		svc: s,
		cam: cam,
		log: log,
		out: make(chan scanner.Envelope, stationOutbox),
		validator: redeem.NewValidator(s.store,
			redeem.WithHistory(s.history),
			redeem.WithStation(stationID),
			redeem.WithClock(s.now),
		),
	}
	st.session = scanner.NewSession(cam, codegen.Decoder{},
		scanner.FrameScheduler{Interval: s.cfg.FrameInterval},
		scanner.WithDebounce(s.cfg.Debounce),
		scanner.WithLogger(log),
	)

	devices, _ := cam.Devices(ctx)
	log.Info("Station connected", "devices", len(devices), "secure", cam.SecureContext())
	return st.run(ctx)
}

type station struct {
	id        string
	svc       *ScanService
	cam       *scanner.RemoteCamera
	session   *scanner.Session
	validator *redeem.Validator
	log       *slog.Logger
	out       chan scanner.Envelope

	mu       sync.Mutex
	cooldown *time.Timer
}

func (st *station) run(ctx context.Context) error {
	go st.writer(ctx)

	if st.svc.changes != nil {
		unsubscribe := st.svc.changes.SubscribeToTicketChanges(func(c models.TicketChange) {
			st.push(scanner.Envelope{Type: MsgTicketChanged, Data: c})
		})
		defer unsubscribe()
	}

	recent, err := st.svc.History(ctx, 0)
	if err != nil {
		st.log.Warn("Failed to load scan history", "error", err)
	}
	st.push(scanner.Envelope{Type: MsgWelcome, Data: map[string]any{
		"station_id": st.id,
		"history":    recent,
	}})

	st.start(ctx, scanner.FacingBack)
	defer st.shutdown()

	controls := st.cam.Controls()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-st.cam.Done():
			st.log.Info("Station disconnected", "reason", st.cam.Err())
			return nil
		case c, ok := <-controls:
			if !ok {
				return nil
			}
			st.handle(ctx, c)
		}
	}
}

func (st *station) handle(ctx context.Context, c scanner.Control) {
	switch c.Type {
	case scanner.MsgSwitch:
		facing := c.Facing
		if facing == "" {
			facing = st.session.Facing().Opposite()
		}
		st.cancelCooldown()
		openCtx, cancel := context.WithTimeout(ctx, st.svc.cfg.OpenTimeout)
		defer cancel()
		if err := st.session.SwitchFacing(openCtx, facing); err != nil {
			st.reportAcquisition(err)
		}

	case scanner.MsgManual:
		msg, err := st.svc.validate(ctx, st.validator, c.Code, SourceManual)
		if err != nil {
			st.reportValidation(err)
			return
		}
		st.push(scanner.Envelope{Type: scanner.MsgOutcome, Code: c.Code, Data: msg})

	case scanner.MsgClose:
		st.cancelCooldown()
		st.session.Stop()
	}
}

func (st *station) start(ctx context.Context, facing scanner.Facing) {
	openCtx, cancel := context.WithTimeout(ctx, st.svc.cfg.OpenTimeout)
	defer cancel()

	err := st.session.Start(openCtx, stationSink{st}, func(code string) {
		st.onDecode(ctx, code)
	}, st.onFrameError, facing)
	if err != nil {
		st.reportAcquisition(err)
	}
}

// onDecode runs with the session paused. Sampling resumes after the cooldown
// so the outcome stays on screen.
func (st *station) onDecode(ctx context.Context, code string) {
	msg, err := st.svc.validate(ctx, st.validator, code, SourceCamera)
	switch {
	case errors.Is(err, status.ErrBusy):
	case err != nil:
		st.reportValidation(err)
	default:
		st.push(scanner.Envelope{Type: scanner.MsgOutcome, Code: code, Data: msg})
	}
	st.resumeAfter(st.svc.cfg.Cooldown)
}

func (st *station) onFrameError(err error) {
	st.push(scanner.Envelope{Type: scanner.MsgError, Error: err.Error()})
	st.resumeAfter(st.svc.cfg.Cooldown)
}

func (st *station) resumeAfter(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cooldown != nil {
		st.cooldown.Stop()
	}
	st.cooldown = time.AfterFunc(d, func() {
		st.session.Resume(nil, nil)
	})
}

func (st *station) cancelCooldown() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cooldown != nil {
		st.cooldown.Stop()
		st.cooldown = nil
	}
}

func (st *station) shutdown() {
	st.cancelCooldown()
	st.session.Stop()
}

func (st *station) reportAcquisition(err error) {
	st.log.Warn("Camera acquisition failed", "error", err)
	st.push(scanner.Envelope{Type: scanner.MsgError, Error: acquisitionMessage(err)})
}

func (st *station) reportValidation(err error) {
	if errors.Is(err, status.ErrBusy) {
		st.push(scanner.Envelope{Type: scanner.MsgError, Error: "A scan is already being checked, try again"})
		return
	}
	st.log.Error("Ticket validation failed", "error", err)
	st.push(scanner.Envelope{Type: scanner.MsgError, Error: "Could not check the ticket, please retry"})
}

func acquisitionMessage(err error) string {
	switch {
	case errors.Is(err, status.ErrPermissionDenied):
		return "Camera permission was denied"
	case errors.Is(err, status.ErrInsecureContext):
		return "The camera needs a secure (https) page"
	case errors.Is(err, status.ErrSessionActive):
		return "The camera is already running"
	default:
		return "No usable camera was found"
	}
}

// push queues msg for the writer. Messages beyond the outbox are dropped so
// that a slow station never stalls the store's change hooks.
func (st *station) push(msg scanner.Envelope) {
	select {
	case st.out <- msg:
	default:
		st.log.Warn("Station outbox full, message dropped", "type", msg.Type)
	}
}

func (st *station) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.cam.Done():
			return
		case msg := <-st.out:
			if err := st.cam.Send(msg); err != nil {
				st.log.Debug("Station write failed", "error", err)
				return
			}
		}
	}
}

type stationSink struct {
	st *station
}

func (s stationSink) Attach(scanner.Stream) {
	used := s.st.session.Constraints()
	s.st.push(scanner.Envelope{
		Type:        MsgAttached,
		Facing:      s.st.session.Facing(),
		Constraints: &used,
	})
}

func (s stationSink) Detach() {
	s.st.push(scanner.Envelope{Type: MsgDetached})
}
