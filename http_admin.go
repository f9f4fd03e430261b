package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminController serves the management console: account lifecycle,
// role management, blacklist, settings, statistics, invitations, and
// personal access tokens. Every route is scope gated.
type AdminController struct {
	Logger       Logger
	Auther       *RouteAuthenticator
	Repo         RepositoryManager
	Machine      AccountStateMachine
	Blacklist    *BlacklistService
	Settings     *SettingsService
	Statistics   *StatisticsService
	AccessTokens *AccessTokenService
	Register     *RegisterAccountHandler
	Invite       *CreateInvitationHandler
	Toggle       *ToggleEmailEncryptionHandler
}

// AdminControllerOption customizes controller construction
type AdminControllerOption func(*AdminController) *AdminController

// WithAdminControllerLogger overrides the controller logger
func WithAdminControllerLogger(logger Logger) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// NewAdminController builds the management controller.
func NewAdminController(auther *RouteAuthenticator, controller AdminController, opts ...AdminControllerOption) *AdminController {
	c := &controller
	c.Auther = auther

	if c.Logger == nil {
		c.Logger = defLogger{}
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in accounts admin controller...")
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts admin controller...")
	}

	return c
}

// RegisterAdminRoutes mounts the management routes. Each handler runs
// behind bearer auth requiring the scope noted on the route.
func RegisterAdminRoutes[T any](app router.Router[T], controller *AdminController) {
	guard := controller.Auther.ProtectedRoute

	app.Get("/user", guard(ScopeUserRead)(controller.AccountList)).
		SetName("admin.user.list")
	app.Get("/user/:id", guard(ScopeUserRead)(controller.AccountShow)).
		SetName("admin.user.get")
	app.Post("/user", guard(ScopeUserWrite)(controller.AccountCreate)).
		SetName("admin.user.post")
	app.Patch("/user/:id/status", guard(ScopeUserWrite)(controller.AccountStatusUpdate)).
		SetName("admin.user.status.patch")
	app.Delete("/user/:id", guard(ScopeUserWrite)(controller.AccountDelete)).
		SetName("admin.user.delete")

	app.Post("/invitation", guard(ScopeUserWrite)(controller.InvitationCreate)).
		SetName("admin.invitation.post")

	app.Get("/role", guard(ScopeRoleRead)(controller.RoleList)).
		SetName("admin.role.list")
	app.Get("/role/:name", guard(ScopeRoleRead)(controller.RoleShow)).
		SetName("admin.role.get")
	app.Post("/role", guard(ScopeRoleWrite)(controller.RoleCreate)).
		SetName("admin.role.post")
	app.Put("/role/:name", guard(ScopeRoleWrite)(controller.RoleUpdate)).
		SetName("admin.role.put")
	app.Delete("/role/:name", guard(ScopeRoleWrite)(controller.RoleDelete)).
		SetName("admin.role.delete")

	app.Get("/blacklist", guard(ScopeBlacklistRead)(controller.BlacklistList)).
		SetName("admin.blacklist.list")
	app.Post("/blacklist", guard(ScopeBlacklistWrite)(controller.BlacklistAdd)).
		SetName("admin.blacklist.post")
	app.Delete("/blacklist", guard(ScopeBlacklistWrite)(controller.BlacklistDelete)).
		SetName("admin.blacklist.delete")

	app.Get("/settings", guard(ScopeSettingsRead)(controller.SettingsShow)).
		SetName("admin.settings.get")
	app.Put("/settings", guard(ScopeSettingsWrite)(controller.SettingsUpdate)).
		SetName("admin.settings.put")
	app.Post("/settings/emailEncryption", guard(ScopeSettingsWrite)(controller.EmailEncryptionToggle)).
		SetName("admin.settings.encryption.post")

	app.Get("/statistics", guard(ScopeStatisticsRead)(controller.StatisticsShow)).
		SetName("admin.statistics.get")

	app.Post("/user/token", guard(ScopeAPIWrite)(controller.AccessTokenCreate)).
		SetName("admin.token.post")
	app.Get("/user/token", guard(ScopeAPIRead)(controller.AccessTokenList)).
		SetName("admin.token.list")
	app.Delete("/user/token/:id", guard(ScopeAPIWrite)(controller.AccessTokenRevoke)).
		SetName("admin.token.delete")
}

func (a *AdminController) AccountList(ctx router.Context) error {
	records, err := a.Repo.Accounts().ListAll(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, records)
}

func (a *AdminController) AccountShow(ctx router.Context) error {
	id, err := a.paramID(ctx, "id")
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	record, err := a.Repo.Accounts().GetByID(ctx.Context(), id.String())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

// AccountCreate registers an account on someone's behalf; unlike the
// public registration route the caller may assign a role.
func (a *AdminController) AccountCreate(ctx router.Context) error {
	payload := new(RegisterAccountMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	payload.IP = ctx.IP()

	var resp *RegisterAccountResponse
	payload.OnResponse = func(r *RegisterAccountResponse) {
		resp = r
	}

	if err := a.Register.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("admin registration error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, resp.Account)
}

// AccountStatusRequest names the lifecycle state to move the account to
type AccountStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (a *AdminController) AccountStatusUpdate(ctx router.Context) error {
	id, err := a.paramID(ctx, "id")
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	payload := new(AccountStatusRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	account, err := a.Repo.Accounts().GetByID(ctx.Context(), id.String())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	opts := []TransitionOption{}
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}

	updated, err := a.Machine.Transition(
		ctx.Context(),
		a.actor(ctx),
		account,
		AccountStatus(payload.Status),
		opts...,
	)
	if err != nil {
		a.Logger.Error("account status update error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, updated)
}

func (a *AdminController) AccountDelete(ctx router.Context) error {
	id, err := a.paramID(ctx, "id")
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	err = a.Repo.RunInTx(ctx.Context(), nil, func(c context.Context, tx bun.Tx) error {
		return a.Repo.Accounts().DeleteCascadeTx(c, tx, id)
	})
	if err != nil {
		a.Logger.Error("account delete error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

func (a *AdminController) InvitationCreate(ctx router.Context) error {
	payload := new(CreateInvitationMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	payload.Actor = a.actor(ctx)

	var resp *CreateInvitationResponse
	payload.OnResponse = func(r *CreateInvitationResponse) {
		resp = r
	}

	if err := a.Invite.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("invitation create error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, resp.Invitation)
}

func (a *AdminController) RoleList(ctx router.Context) error {
	records, err := a.Repo.Roles().List(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, a.shapeRoles(ctx, records))
}

func (a *AdminController) RoleShow(ctx router.Context) error {
	record, err := a.Repo.Roles().GetByName(ctx.Context(), ctx.Param("name"))
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, a.shapeRoles(ctx, []*Role{record})[0])
}

// RoleRequest carries a role definition
type RoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Scopes      []string `json:"scopes"`
}

func (a *AdminController) RoleCreate(ctx router.Context) error {
	payload := new(RoleRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if payload.Name == "" {
		return a.Auther.ErrorHandler(ctx, ErrNoEmptyString)
	}

	for _, scope := range payload.Scopes {
		if !IsValidScope(scope) {
			return a.Auther.ErrorHandler(ctx, errors.New("unknown scope", errors.CategoryValidation).
				WithTextCode("UNKNOWN_SCOPE").
				WithCode(errors.CodeBadRequest).
				WithMetadata(map[string]any{"scope": scope}))
		}
	}

	if _, err := a.Repo.Roles().GetByName(ctx.Context(), payload.Name); err == nil {
		return a.Auther.ErrorHandler(ctx, errors.New("role already exists", errors.CategoryConflict).
			WithTextCode("ROLE_EXISTS").
			WithCode(errors.CodeConflict))
	}

	record, err := a.Repo.Roles().Create(ctx.Context(), &Role{
		ID:          uuid.New(),
		Name:        payload.Name,
		Description: payload.Description,
		Scopes:      payload.Scopes,
	})
	if err != nil {
		a.Logger.Error("role create error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, a.shapeRoles(ctx, []*Role{record})[0])
}

func (a *AdminController) RoleUpdate(ctx router.Context) error {
	payload := new(RoleRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	for _, scope := range payload.Scopes {
		if !IsValidScope(scope) {
			return a.Auther.ErrorHandler(ctx, errors.New("unknown scope", errors.CategoryValidation).
				WithTextCode("UNKNOWN_SCOPE").
				WithCode(errors.CodeBadRequest).
				WithMetadata(map[string]any{"scope": scope}))
		}
	}

	record, err := a.Repo.Roles().GetByName(ctx.Context(), ctx.Param("name"))
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	record.Description = payload.Description
	record.Scopes = payload.Scopes

	updated, err := a.Repo.Roles().Update(ctx.Context(), record)
	if err != nil {
		a.Logger.Error("role update error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, a.shapeRoles(ctx, []*Role{updated})[0])
}

func (a *AdminController) RoleDelete(ctx router.Context) error {
	name := ctx.Param("name")

	record, err := a.Repo.Roles().GetByName(ctx.Context(), name)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if record.IsSystem() {
		return a.Auther.ErrorHandler(ctx, errors.New("system roles cannot be deleted", errors.CategoryValidation).
			WithTextCode("SYSTEM_ROLE").
			WithCode(errors.CodeBadRequest))
	}

	err = a.Repo.RunInTx(ctx.Context(), nil, func(c context.Context, tx bun.Tx) error {
		return a.Repo.Roles().DeleteReassigningTx(c, tx, name, RoleUser)
	})
	if err != nil {
		a.Logger.Error("role delete error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

func (a *AdminController) BlacklistList(ctx router.Context) error {
	entries, err := a.Blacklist.List(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, entries)
}

// BlacklistRequest names an IP or an email to block or unblock; exactly
// one of the two must be set.
type BlacklistRequest struct {
	IP    string `json:"ip"`
	Email string `json:"email"`
}

func (a *AdminController) BlacklistAdd(ctx router.Context) error {
	payload := new(BlacklistRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	actor := a.actor(ctx)

	var entry *BlacklistEntry
	var err error

	switch {
	case payload.IP != "":
		entry, err = a.Blacklist.AddIP(ctx.Context(), actor, payload.IP)
	case payload.Email != "":
		entry, err = a.Blacklist.AddEmail(ctx.Context(), actor, payload.Email)
	default:
		err = ErrNoEmptyString
	}

	if err != nil {
		a.Logger.Error("blacklist add error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, entry)
}

func (a *AdminController) BlacklistDelete(ctx router.Context) error {
	payload := new(BlacklistRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	actor := a.actor(ctx)

	var err error
	switch {
	case payload.IP != "":
		err = a.Blacklist.DeleteIP(ctx.Context(), actor, payload.IP)
	case payload.Email != "":
		err = a.Blacklist.DeleteEmail(ctx.Context(), actor, payload.Email)
	default:
		err = ErrNoEmptyString
	}

	if err != nil {
		a.Logger.Error("blacklist delete error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

func (a *AdminController) SettingsShow(ctx router.Context) error {
	settings, err := a.Settings.Current(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, settings)
}

func (a *AdminController) SettingsUpdate(ctx router.Context) error {
	payload := new(Settings)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	updated, err := a.Settings.Update(ctx.Context(), payload)
	if err != nil {
		a.Logger.Error("settings update error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, updated)
}

func (a *AdminController) EmailEncryptionToggle(ctx router.Context) error {
	payload := new(ToggleEmailEncryptionMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	payload.Actor = a.actor(ctx)

	var resp *ToggleEmailEncryptionResponse
	payload.OnResponse = func(r *ToggleEmailEncryptionResponse) {
		resp = r
	}

	if err := a.Toggle.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("email encryption toggle error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	if err := a.Settings.Reload(ctx.Context()); err != nil {
		a.Logger.Error("settings reload error: %v", err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *AdminController) StatisticsShow(ctx router.Context) error {
	stats, err := a.Statistics.Collect(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, stats)
}

// AccessTokenRequest names the token to mint. Duration accepts the
// expressions the token TTL settings accept, e.g. "720h".
type AccessTokenRequest struct {
	Name     string   `json:"name"`
	Scopes   []string `json:"scopes"`
	Duration string   `json:"duration"`
}

func (a *AdminController) AccessTokenCreate(ctx router.Context) error {
	payload := new(AccessTokenRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	accountID, err := a.sessionAccountID(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	account, err := a.Repo.Accounts().GetByID(ctx.Context(), accountID.String())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	raw, record, err := a.AccessTokens.Create(ctx.Context(), account, payload.Name, payload.Scopes, payload.Duration)
	if err != nil {
		a.Logger.Error("access token create error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	// the raw token is shown exactly once
	return ctx.JSON(router.StatusCreated, map[string]any{
		"token":  raw,
		"record": record,
	})
}

func (a *AdminController) AccessTokenList(ctx router.Context) error {
	accountID, err := a.sessionAccountID(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	records, err := a.AccessTokens.List(ctx.Context(), accountID)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, records)
}

func (a *AdminController) AccessTokenRevoke(ctx router.Context) error {
	accountID, err := a.sessionAccountID(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	tokenID, err := a.paramID(ctx, "id")
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if err := a.AccessTokens.Revoke(ctx.Context(), accountID, tokenID); err != nil {
		a.Logger.Error("access token revoke error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

// shapeRoles hides scope lists from callers that hold role access but
// not scope access.
func (a *AdminController) shapeRoles(ctx router.Context, records []*Role) []*Role {
	if HasScope(ctx.Context(), ScopeScopesRead) {
		return records
	}

	shaped := make([]*Role, 0, len(records))
	for _, record := range records {
		redacted := *record
		redacted.Scopes = nil
		shaped = append(shaped, &redacted)
	}

	return shaped
}

func (a *AdminController) actor(ctx router.Context) ActorRef {
	claims, ok := GetClaims(ctx.Context())
	if !ok {
		return ActorRef{Type: "system"}
	}

	return ActorRef{ID: claims.UserID(), Type: "account"}
}

func (a *AdminController) paramID(ctx router.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		return uuid.Nil, errors.New("invalid identifier", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"param": name})
	}
	return id, nil
}

func (a *AdminController) sessionAccountID(ctx router.Context) (uuid.UUID, error) {
	claims, ok := GetClaims(ctx.Context())
	if !ok {
		return uuid.Nil, ErrIdentityNotFound
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}

	return id, nil
}
