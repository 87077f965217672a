package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/notify"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

const sendTimeout = 30 * time.Second

// NotificationService renders and sends the lifecycle emails.
type NotificationService struct {
	store    repository.Store
	mailer   notify.Mailer
	renderer *notify.Renderer
	logger   *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Store    repository.Store
	Mailer   notify.Mailer
	Renderer *notify.Renderer
	Logger   *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	if deps.Renderer == nil {
		deps.Renderer = notify.MustRenderer()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &NotificationService{
		store:    deps.Store,
		mailer:   deps.Mailer,
		renderer: deps.Renderer,
		logger:   deps.Logger,
	}
}

// RequestFiled tells the citizen their request was registered.
func (n *NotificationService) RequestFiled(ctx context.Context, req *domain.Request) error {
	citizen, err := n.store.Repos().Users.GetByID(ctx, req.CitizenID)
	if err != nil {
		return n.failed(req, fmt.Errorf("load citizen: %w", err))
	}
	data := n.mailData(ctx, req, citizen)
	data.Body = notify.ContentText(req.Content)
	return n.deliver(ctx, req, citizen.Email, "Nueva solicitud: "+req.Subject, notify.TemplateRequestFiled, data)
}

// ResponseSent forwards an official response to the citizen.
func (n *NotificationService) ResponseSent(ctx context.Context, req *domain.Request, event *domain.AuditEvent) error {
	citizen, err := n.store.Repos().Users.GetByID(ctx, req.CitizenID)
	if err != nil {
		return n.failed(req, fmt.Errorf("load citizen: %w", err))
	}
	data := n.mailData(ctx, req, citizen)
	data.Body = notify.ContentText(event.Payload)
	if data.Body == "" {
		data.Body = event.Message
	}
	return n.deliver(ctx, req, citizen.Email, "Respuesta a tu solicitud: "+req.Subject, notify.TemplateResponse, data)
}

// DeadlineAlert warns the assignee that the request is about to expire.
func (n *NotificationService) DeadlineAlert(ctx context.Context, req *domain.Request) error {
	if req.AssignedToID == nil {
		return n.failed(req, errors.New("request has no assignee"))
	}
	officer, err := n.store.Repos().Users.GetByID(ctx, *req.AssignedToID)
	if err != nil {
		return n.failed(req, fmt.Errorf("load assignee: %w", err))
	}
	data := n.mailData(ctx, req, officer)
	return n.deliver(ctx, req, officer.Email, "Solicitud próxima a vencer: "+req.Radicado, notify.TemplateDeadlineAlert, data)
}

func (n *NotificationService) mailData(ctx context.Context, req *domain.Request, recipient *domain.User) notify.MailData {
	data := notify.MailData{
		Recipient: recipient.FullName,
		Subject:   req.Subject,
		Radicado:  req.Radicado,
		Deadline:  req.Deadline,
	}
	entity, err := n.store.Repos().Entities.GetByID(ctx, req.EntityID)
	if err != nil {
		n.logger.Debug("entity branding unavailable", zap.String("entity_id", req.EntityID), zap.Error(err))
		return data
	}
	data.EntityName = entity.Name
	data.EntityLogo = entity.ImgURL
	return data
}

func (n *NotificationService) deliver(ctx context.Context, req *domain.Request, to, subject, template string, data notify.MailData) error {
	body, err := n.renderer.Render(template, data)
	if err != nil {
		return n.failed(req, err)
	}
	// The send outlives the HTTP request that triggered it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		return n.failed(req, err)
	}
	return nil
}

func (n *NotificationService) failed(req *domain.Request, err error) error {
	observability.MailFailuresTotal.Inc()
	n.logger.Warn("email notification failed",
		zap.String("radicado", req.Radicado),
		zap.Error(err),
	)
	return err
}
