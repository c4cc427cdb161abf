package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/notify"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/phrazzld/postpilot/internal/task"
	"golang.org/x/time/rate"
)

// Engine is the part of the task engine the relay drives.
type Engine interface {
	Submit(ctx context.Context, spec task.Spec, opts ...task.SubmitOption) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	CancelTask(ctx context.Context, id uuid.UUID) error
}

// DeviceRegistry is the device bookkeeping the relay relies on.
type DeviceRegistry interface {
	Register(ctx context.Context, deviceID, platform, pushChannel string) (*domain.Device, error)
	Touch(ctx context.Context, deviceID string) error
	Lookup(ctx context.Context, deviceID string) (*domain.Device, error)
}

// Config tunes the relay.
type Config struct {
	// CommandsPerMinute limits commands per device. Zero disables limiting.
	CommandsPerMinute int
	// Burst is how many commands a device may send at once.
	Burst int
	// PushTimeout bounds each result push.
	PushTimeout time.Duration
}

// limiterSweepInterval is how often limiters that have refilled are dropped.
const limiterSweepInterval = time.Minute

// Relay handles device commands.
type Relay struct {
	engine   Engine
	devices  DeviceRegistry
	notifier notify.Notifier
	validate *validator.Validate
	clock    clock.Clock
	config   Config
	logger   *slog.Logger

	limitMu   sync.Mutex
	limiters  map[string]*rate.Limiter
	lastSweep time.Time
}

// New creates a Relay.
func New(
	engine Engine,
	devices DeviceRegistry,
	notifier notify.Notifier,
	clk clock.Clock,
	config Config,
	logger *slog.Logger,
) (*Relay, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if devices == nil {
		return nil, fmt.Errorf("device registry cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.PushTimeout <= 0 {
		config.PushTimeout = 10 * time.Second
	}
	return &Relay{
		engine:   engine,
		devices:  devices,
		notifier: notifier,
		validate: validator.New(),
		clock:    clk,
		config:   config,
		logger:   logger.With("component", "mobile_relay"),
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Handle processes one command and acknowledges it. It never blocks on task
// execution: task commands are acknowledged once the task is submitted.
func (r *Relay) Handle(ctx context.Context, cmd Command) CommandAck {
	log := r.logger.With("device_id", cmd.DeviceID, "command_type", cmd.CommandType)

	if err := r.validate.Struct(cmd); err != nil {
		return reject(fmt.Errorf("%w: %v", ErrInvalidCommand, err))
	}

	ack := r.dispatch(ctx, cmd)
	switch {
	case ack.Accepted:
		log.Info("command accepted", "task_id", ack.TaskID, "status", ack.Status)
	case errors.Is(ack.Err, ErrRateLimited):
		log.Warn("command rate limited")
	default:
		log.Info("command rejected", "error", ack.Err)
	}
	return ack
}

func (r *Relay) dispatch(ctx context.Context, cmd Command) CommandAck {
	// only registration may come from a device the registry has never seen
	if cmd.CommandType != CommandRegister {
		if err := r.knownDevice(ctx, cmd.DeviceID); err != nil {
			return reject(err)
		}
	}
	if !r.allow(cmd.DeviceID) {
		return reject(ErrRateLimited)
	}

	switch cmd.CommandType {
	case CommandRegister:
		return r.register(ctx, cmd)
	case CommandGenerateContent:
		return r.submit(ctx, cmd, r.generateSpec)
	case CommandPublish:
		return r.submit(ctx, cmd, r.publishSpec)
	case CommandCancel:
		return r.cancel(ctx, cmd)
	default:
		return reject(fmt.Errorf("%w: unknown command type %q", ErrInvalidCommand, cmd.CommandType))
	}
}

func (r *Relay) register(ctx context.Context, cmd Command) CommandAck {
	var p registerParams
	if err := r.decode(cmd.Params, &p); err != nil {
		return reject(err)
	}
	if _, err := r.devices.Register(ctx, cmd.DeviceID, p.Platform, p.PushChannel); err != nil {
		return reject(err)
	}
	return CommandAck{Accepted: true, Status: StatusRegistered}
}

type specBuilder func(params json.RawMessage) (task.Spec, error)

func (r *Relay) submit(ctx context.Context, cmd Command, build specBuilder) CommandAck {
	spec, err := build(cmd.Params)
	if err != nil {
		return reject(err)
	}
	deviceID := cmd.DeviceID
	spec.DeviceID = &deviceID

	var opts []task.SubmitOption
	if spec.PublishConfig.NotifyOnComplete {
		opts = append(opts, task.WithWatcher(r.pushResult(deviceID)))
	}

	id, err := r.engine.Submit(ctx, spec, opts...)
	if err != nil {
		return reject(err)
	}
	return CommandAck{Accepted: true, TaskID: &id, Status: StatusAccepted}
}

func (r *Relay) generateSpec(params json.RawMessage) (task.Spec, error) {
	var p generateParams
	if err := r.decode(params, &p); err != nil {
		return task.Spec{}, err
	}
	spec := task.Spec{
		Type:             domain.TaskTypeGenerate,
		GenerationConfig: p.GenerationConfig,
		PublishConfig:    p.PublishConfig,
	}
	if p.AccountID != nil {
		spec.Type = domain.TaskTypeGenerateAndPublish
		spec.AccountID = p.AccountID
	}
	return spec, nil
}

func (r *Relay) publishSpec(params json.RawMessage) (task.Spec, error) {
	var p publishParams
	if err := r.decode(params, &p); err != nil {
		return task.Spec{}, err
	}
	return task.Spec{
		Type:          domain.TaskTypePublish,
		ContentID:     &p.ContentID,
		AccountID:     &p.AccountID,
		PublishConfig: p.PublishConfig,
	}, nil
}

func (r *Relay) cancel(ctx context.Context, cmd Command) CommandAck {
	var p cancelParams
	if err := r.decode(cmd.Params, &p); err != nil {
		return reject(err)
	}

	t, err := r.engine.GetStatus(ctx, p.TaskID)
	if err != nil {
		return reject(err)
	}
	if t.DeviceID == nil || *t.DeviceID != cmd.DeviceID {
		return reject(ErrTaskNotOwned)
	}
	if err := r.engine.CancelTask(ctx, p.TaskID); err != nil {
		return reject(err)
	}
	id := p.TaskID
	return CommandAck{Accepted: true, TaskID: &id, Status: StatusCancelling}
}

// knownDevice checks the device is registered and refreshes its last-seen time.
func (r *Relay) knownDevice(ctx context.Context, deviceID string) error {
	if _, err := r.devices.Lookup(ctx, deviceID); err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
		}
		return err
	}
	if err := r.devices.Touch(ctx, deviceID); err != nil {
		r.logger.Warn("failed to touch device", "device_id", deviceID, "error", err)
	}
	return nil
}

// pushResult returns a watcher that pushes the task outcome to the device's
// current push channel.
func (r *Relay) pushResult(deviceID string) task.Watcher {
	return func(ctx context.Context, t *domain.Task) {
		log := r.logger.With("device_id", deviceID, "task_id", t.ID)

		device, err := r.devices.Lookup(ctx, deviceID)
		if err != nil {
			log.Error("cannot resolve device for result push", "error", err)
			return
		}
		if device.PushChannel == "" {
			log.Debug("device has no push channel, skipping result push")
			return
		}

		pushCtx, cancel := context.WithTimeout(ctx, r.config.PushTimeout)
		defer cancel()
		if err := r.notifier.Push(pushCtx, device.PushChannel, notify.NewResultPayload(t)); err != nil {
			log.Error("failed to push task result", "error", err)
			return
		}
		log.Info("task result pushed", "status", t.Status)
	}
}

// decode unmarshals params strictly and validates them.
func (r *Relay) decode(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalidCommand, err)
	}
	if err := r.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalidCommand, err)
	}
	return nil
}

func (r *Relay) allow(deviceID string) bool {
	if r.config.CommandsPerMinute <= 0 {
		return true
	}

	now := r.clock.Now()
	r.limitMu.Lock()
	defer r.limitMu.Unlock()

	if now.Sub(r.lastSweep) >= limiterSweepInterval {
		r.sweepLimiters(now)
	}
	limiter, ok := r.limiters[deviceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.config.CommandsPerMinute)), r.config.Burst)
		r.limiters[deviceID] = limiter
	}
	return limiter.AllowN(now, 1)
}

// sweepLimiters drops limiters that have refilled to their burst; a new
// limiter for the same device starts in the same state. Callers hold limitMu.
func (r *Relay) sweepLimiters(now time.Time) {
	burst := float64(r.config.Burst)
	for id, limiter := range r.limiters {
		if limiter.TokensAt(now) >= burst {
			delete(r.limiters, id)
		}
	}
	r.lastSweep = now
}

func reject(err error) CommandAck {
	return CommandAck{
		Accepted:     false,
		Status:       StatusRejected,
		ErrorMessage: ackMessage(err),
		Err:          err,
	}
}

// ackMessage exposes errors the device can act on and hides the rest.
func ackMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand),
		errors.Is(err, ErrUnknownDevice),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTaskNotOwned),
		errors.Is(err, domain.ErrValidation):
		return err.Error()
	case errors.Is(err, store.ErrNotFound):
		return "referenced task, content or account does not exist"
	default:
		return "internal error"
	}
}
