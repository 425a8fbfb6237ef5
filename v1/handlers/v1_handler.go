package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/idp/idpfactory"
	"github.com/opendisclosure/entity-backend/pkg/monitoring"
	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
	"github.com/opendisclosure/entity-backend/v1/services"
	"github.com/opendisclosure/entity-backend/v1/utils"

	"gorm.io/gorm"
)

// V1Handler handles all V1 API routes
type V1Handler struct {
	entityService       *services.EntityService
	admissionService    *services.AdmissionService
	registrationService *services.RegistrationService
	personnelService    *services.PersonnelService
	demolitionService   *services.DemolitionService
	hostedLink          services.LinkBuilder
}

// NewV1Handler creates a new V1 handler with all lifecycle services wired
// from environment configuration. The context bounds the directory client's
// token refresh lifetime.
func NewV1Handler(ctx context.Context, db *gorm.DB) (*V1Handler, error) {
	// Get scopes from environment variable, fallback to default if not set
	asgScopesEnv := os.Getenv("ASGARDEO_SCOPES")
	var scopes []string
	if asgScopesEnv != "" {
		// Split by space to handle multiple scopes
		scopes = strings.Fields(asgScopesEnv)
	}
	baseURL := os.Getenv("ASGARDEO_BASE_URL")
	clientID := os.Getenv("ASGARDEO_CLIENT_ID")
	clientSecret := os.Getenv("ASGARDEO_CLIENT_SECRET")

	if baseURL == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("failed to create IDP provider: missing required environment variables (ASGARDEO_BASE_URL, ASGARDEO_CLIENT_ID, ASGARDEO_CLIENT_SECRET)")
	}

	idpProvider, err := idpfactory.NewIdpAPIProvider(ctx, idpfactory.FactoryConfig{
		ProviderType: idp.ProviderAsgardeo,
		BaseURL:      baseURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create IDP provider: %w", err)
	}

	cfg := services.NewLifecycleConfig()

	var notifier services.EmailNotifier
	smtpCfg := services.NewSMTPConfig()
	if smtpCfg.Host != "" {
		notifier = services.NewSMTPNotifier(smtpCfg, db)
		slog.Info("SMTP notifier configured", "host", smtpCfg.Host)
	} else {
		notifier = services.NewLoggingNotifier(db)
		slog.Warn("SMTP_HOST not set, email delivery is log-only")
	}

	return NewV1HandlerWithDeps(db, idpProvider, notifier, services.NewDBScheduler(db), cfg), nil
}

// NewV1HandlerWithDeps creates a V1 handler from explicit collaborators.
// Used directly by tests to substitute fakes.
func NewV1HandlerWithDeps(
	db *gorm.DB,
	idpProvider idp.IdentityProviderAPI,
	notifier services.EmailNotifier,
	scheduler services.Scheduler,
	cfg *services.LifecycleConfig,
) *V1Handler {
	entities := repository.NewEntityRepository(db)
	users := repository.NewUserRepository(db)
	invitations := repository.NewInvitationRepository(db)

	admission := services.NewAdmissionService(entities, users, invitations, idpProvider, notifier, cfg)
	registration := services.NewRegistrationService(entities, users, invitations, idpProvider)
	demolition := services.NewDemolitionService(db, entities, users, invitations, idpProvider, notifier)
	personnel := services.NewPersonnelService(entities, users, invitations, idpProvider, notifier, scheduler, admission, demolition, cfg)

	return &V1Handler{
		entityService:       services.NewEntityService(entities),
		admissionService:    admission,
		registrationService: registration,
		personnelService:    personnel,
		demolitionService:   demolition,
		hostedLink:          services.NewHostedLinkBuilder(cfg),
	}
}

// SetupV1Routes configures all V1 API routes
func (h *V1Handler) SetupV1Routes(mux *http.ServeMux) {
	// Task dispatch route
	mux.Handle("/api/v1/tasks", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleTasks)))

	// Entity routes
	mux.Handle("/api/v1/entities", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleEntities)))
	mux.Handle("/api/v1/entities/", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleEntities)))
}

// handleTasks accepts a task request and runs it through the dispatcher.
// Every lifecycle operation enters here; the HTTP status mirrors the status
// code in the response body.
func (h *V1Handler) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Task == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Task name is required")
		return
	}

	resp := h.Dispatch(r.Context(), req)
	utils.RespondWithJSON(w, resp.StatusCode, resp)
}

// handleEntities handles entity-related routes
func (h *V1Handler) handleEntities(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/entities")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 1 && parts[0] == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Entity ID is required")
		return
	}

	entityId := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.getEntity(w, r, entityId)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
}

func (h *V1Handler) getEntity(w http.ResponseWriter, r *http.Request, entityId string) {
	entity, err := h.entityService.GetEntity(r.Context(), entityId)
	if err != nil {
		utils.RespondWithError(w, models.StatusForError(err), err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, entity)
}

// Dispatch routes a task request to its lifecycle operation and folds the
// outcome into a uniform response. It doubles as the timer worker's
// re-entry point, so timer-armed tasks run through exactly the same path as
// caller-submitted ones.
func (h *V1Handler) Dispatch(ctx context.Context, req models.TaskRequest) models.TaskResponse {
	start := time.Now()
	resp := h.dispatch(ctx, req)
	monitoring.RecordTask(ctx, req.Task, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusInternalServerError {
		slog.Error("Task failed", "task", req.Task, "status", resp.StatusCode, "message", resp.Message)
	} else {
		slog.Info("Task completed", "task", req.Task, "status", resp.StatusCode)
	}
	return resp
}

func (h *V1Handler) dispatch(ctx context.Context, req models.TaskRequest) models.TaskResponse {
	switch req.Task {
	case models.TaskPing:
		return okResponse("pong", req.Parameters)

	case models.TaskInviteUser:
		var inviteReq models.InviteUserRequest
		if err := decodeParameters(req.Parameters, &inviteReq); err != nil {
			return errorResponse(err)
		}
		var link services.LinkBuilder
		if hosted, _ := req.Parameters["hosted"].(bool); hosted {
			link = h.hostedLink
		}
		issued, err := h.admissionService.InviteUser(ctx, &inviteReq, link)
		if err != nil {
			return errorResponse(err)
		}
		monitoring.RecordLifecycleEvent(ctx, "invitation", "issued")
		return okResponse("Invitation issued", issued)

	case models.TaskLookupInvitation:
		inv, err := h.registrationService.Lookup(ctx, stringParam(req.Parameters, "code"))
		if err != nil {
			return errorResponse(err)
		}
		return okResponse("ok", inv)

	case models.TaskAcknowledge:
		inv, err := h.registrationService.Acknowledge(ctx, stringParam(req.Parameters, "code"))
		if err != nil {
			return errorResponse(err)
		}
		return okResponse("Invitation acknowledged", inv)

	case models.TaskRegister:
		var regReq models.RegisterRequest
		if err := decodeParameters(req.Parameters, &regReq); err != nil {
			return errorResponse(err)
		}
		inv, err := h.registrationService.Register(ctx, &regReq)
		if err != nil {
			return errorResponse(err)
		}
		monitoring.RecordLifecycleEvent(ctx, "invitation", "registered")
		return okResponse("Registration complete", inv)

	case models.TaskRetractInvitation:
		inv, err := h.registrationService.Retract(ctx, stringParam(req.Parameters, "code"))
		if err != nil {
			return errorResponse(err)
		}
		monitoring.RecordLifecycleEvent(ctx, "invitation", "retracted")
		return okResponse("Invitation retracted", inv)

	case models.TaskAmendEntityName:
		var amendReq models.AmendEntityNameRequest
		if err := decodeParameters(req.Parameters, &amendReq); err != nil {
			return errorResponse(err)
		}
		entity, err := h.entityService.AmendEntityName(ctx, &amendReq)
		if err != nil {
			return errorResponse(err)
		}
		return okResponse("Entity name amended", entity)

	case models.TaskCorrectEntityRep:
		var correctReq models.CorrectPersonnelRequest
		if err := decodeParameters(req.Parameters, &correctReq); err != nil {
			return errorResponse(err)
		}
		result, err := h.personnelService.CorrectPersonnel(ctx, &correctReq)
		if err != nil {
			return errorResponse(err)
		}
		monitoring.RecordLifecycleEvent(ctx, "personnel", "corrected")
		return okResponse("Personnel corrected", result)

	case models.TaskDemolishEntity:
		dryRun, _ := req.Parameters["dryRun"].(bool)
		record, err := h.demolitionService.Demolish(ctx, stringParam(req.Parameters, "entityId"), dryRun)
		if err != nil {
			return errorResponse(err)
		}
		if !dryRun {
			monitoring.RecordLifecycleEvent(ctx, "entity", "demolished")
		}
		return okResponse("Entity demolished", record)

	case models.TaskCheckStaleVacancy:
		entityId := stringParam(req.Parameters, "entityId")
		role := models.Role(stringParam(req.Parameters, "role"))
		record, err := h.personnelService.CheckStaleVacancy(ctx, entityId, role)
		if err != nil {
			return errorResponse(err)
		}
		if record != nil && !record.DryRun {
			monitoring.RecordLifecycleEvent(ctx, "entity", "demolished")
		}
		return okResponse("Stale vacancy checked", record)

	default:
		return models.TaskResponse{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("unknown task %q", req.Task),
		}
	}
}

func okResponse(message string, payload interface{}) models.TaskResponse {
	return models.TaskResponse{
		StatusCode: http.StatusOK,
		Message:    message,
		Payload:    payload,
	}
}

func errorResponse(err error) models.TaskResponse {
	return models.TaskResponse{
		StatusCode: models.StatusForError(err),
		Message:    err.Error(),
	}
}

// decodeParameters round-trips the loose parameter bag through JSON into a
// typed request struct.
func decodeParameters(params map[string]interface{}, out interface{}) error {
	encoded, err := json.Marshal(params)
	if err != nil {
		return models.NewValidationError("parameters", params)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return models.NewValidationError("parameters", params)
	}
	return nil
}

func stringParam(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}
