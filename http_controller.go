package accounts

import (
	"net/url"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AuthCommands bundles the command handlers the controller dispatches to.
type AuthCommands struct {
	Register       *RegisterAccountHandler
	Confirm        *ConfirmRegistrationHandler
	EmailChange    *InitializeEmailChangeHandler
	EmailRedeem    *RedeemEmailChangeHandler
	PasswordChange *InitializePasswordChangeHandler
	PasswordRedeem *RedeemPasswordChangeHandler
	ResetInit      *InitializePasswordResetHandler
	ResetFinalize  *FinalizePasswordResetHandler
	RedeemInvite   *RedeemInvitationHandler
}

// AuthController serves the authentication, modification, and system
// route groups as a JSON API.
type AuthController struct {
	Logger   Logger
	Auther   *RouteAuthenticator
	Auth     Authenticator
	Commands AuthCommands
	Settings *SettingsService
}

// AuthControllerOption customizes controller construction
type AuthControllerOption func(*AuthController) *AuthController

// WithAuthControllerLogger overrides the controller logger
func WithAuthControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// NewAuthController builds the controller; Auther, Auth, Settings, and
// the command handlers are required.
func NewAuthController(auther *RouteAuthenticator, auth Authenticator, settings *SettingsService, commands AuthCommands, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Auther:   auther,
		Auth:     auth,
		Commands: commands,
		Settings: settings,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in accounts controller...")
	}

	if c.Auth == nil {
		panic("Missing Authenticator in accounts controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the public authentication and modification
// routes plus the system info endpoints.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	app.Post("/authentication/registration", controller.RegistrationCreate).
		SetName("registration.post")

	app.Get("/authentication/confirm", controller.RegistrationConfirm).
		SetName("registration.confirm.get")

	app.Post("/authentication/signin", controller.SignIn).
		SetName("sign-in.post")

	app.Post("/authentication/twofactor", controller.TwoFactor).
		SetName("two-factor.post")

	app.Put("/authentication/token", controller.RefreshToken).
		SetName("token.put")

	app.Post("/authentication/invitation", controller.InvitationRedeem).
		SetName("invitation.post")

	app.Post("/authentication/resetPassword", controller.PasswordResetInit).
		SetName("pwd-reset.post")

	app.Get("/modification/resetPassword", controller.PasswordResetLanding).
		SetName("pwd-reset.get")

	app.Patch("/modification/resetPassword", controller.PasswordResetFinalize).
		SetName("pwd-reset-do.patch")

	app.Get("/modification/email", controller.EmailChangeRedeem).
		SetName("email-change.get")

	app.Get("/modification/password", controller.PasswordChangeRedeem).
		SetName("pwd-change.get")

	protected := controller.Auther.ProtectedRoute()

	app.Post("/modification/email", protected(controller.EmailChangeInit)).
		SetName("email-change.post")

	app.Post("/modification/password", protected(controller.PasswordChangeInit)).
		SetName("pwd-change.post")

	app.Get("/system/state", controller.SystemState).
		SetName("system.state.get")

	app.Get("/system/enableRegistrationView", controller.RegistrationViewEnabled).
		SetName("system.registration-view.get")

	app.Get("/system/hooks", controller.SystemHooks).
		SetName("system.hooks.get")
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterAccountMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	payload.IP = ctx.IP()
	// role assignment is reserved for admin-driven registration
	payload.Role = ""

	var resp *RegisterAccountResponse
	payload.OnResponse = func(r *RegisterAccountResponse) {
		resp = r
	}

	if err := a.Commands.Register.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("registration error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, resp.RefreshToken, resp.RefreshExpires)

	return ctx.JSON(router.StatusCreated, resp.Account)
}

func (a *AuthController) RegistrationConfirm(ctx router.Context) error {
	var resp *ConfirmRegistrationResponse

	msg := ConfirmRegistrationMessage{
		Token: ctx.Query("token", ""),
		OnResponse: func(r *ConfirmRegistrationResponse) {
			resp = r
		},
	}

	if err := a.Commands.Confirm.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("registration confirmation error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	if resp != nil && resp.Hook != "" {
		return ctx.Redirect(resp.Hook, router.StatusSeeOther)
	}

	return ctx.JSON(router.StatusOK, resp.Account)
}

// SignInRequest is the credential payload
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *AuthController) SignIn(ctx router.Context) error {
	payload := new(SignInRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	result, err := a.Auth.SignIn(ctx.Context(), payload.Email, payload.Password, ctx.IP())
	if err != nil {
		a.Logger.Error("sign in error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	if result.RefreshToken != "" {
		a.Auther.SetRefreshCookie(ctx, result.RefreshToken, result.RefreshExpires)
	}

	return ctx.JSON(router.StatusOK, result)
}

// TwoFactorRequest redeems a sign in challenge
type TwoFactorRequest struct {
	TwoFactorAuthID string `json:"twoFactorAuthId"`
	Code            string `json:"code"`
}

func (a *AuthController) TwoFactor(ctx router.Context) error {
	payload := new(TwoFactorRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	challengeID, err := uuid.Parse(payload.TwoFactorAuthID)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, ErrTokenMalformed)
	}

	result, err := a.Auth.CompleteTwoFactor(ctx.Context(), challengeID, payload.Code, ctx.IP())
	if err != nil {
		a.Logger.Error("two factor error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	if result.RefreshToken != "" {
		a.Auther.SetRefreshCookie(ctx, result.RefreshToken, result.RefreshExpires)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AuthController) RefreshToken(ctx router.Context) error {
	raw := a.Auther.RefreshCookie(ctx)
	if raw == "" {
		return a.Auther.ErrorHandler(ctx, ErrTokenMalformed)
	}

	result, err := a.Auth.Refresh(ctx.Context(), raw)
	if err != nil {
		a.Logger.Error("token refresh error: %v", err)
		a.Auther.ClearRefreshCookie(ctx)
		return a.Auther.ErrorHandler(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, result.RefreshToken, result.RefreshExpires)

	return ctx.JSON(router.StatusOK, result)
}

func (a *AuthController) InvitationRedeem(ctx router.Context) error {
	payload := new(RedeemInvitationMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if payload.Token == "" {
		payload.Token = ctx.Query("token", "")
	}

	var resp *RedeemInvitationResponse
	payload.OnResponse = func(r *RedeemInvitationResponse) {
		resp = r
	}

	if err := a.Commands.RedeemInvite.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("invitation redemption error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, resp.Account)
}

func (a *AuthController) PasswordResetInit(ctx router.Context) error {
	payload := new(InitializePasswordResetMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	payload.IP = ctx.IP()
	payload.OnResponse = nil

	if err := a.Commands.ResetInit.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	// identical body whether or not the email matched an account
	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

// PasswordResetLanding is where the reset mail link points. It hands the
// token to the configured frontend hook, or echoes it back as JSON so a
// client without a hook can build the PATCH itself.
func (a *AuthController) PasswordResetLanding(ctx router.Context) error {
	token := ctx.Query("token", "")
	if token == "" {
		return a.Auther.ErrorHandler(ctx, ErrTokenMalformed)
	}

	settings, err := a.Settings.Current(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if hook := settings.Hook(HookPasswordReset); hook != "" {
		return ctx.Redirect(hook+"?token="+url.QueryEscape(token), router.StatusSeeOther)
	}

	return ctx.JSON(router.StatusOK, map[string]string{"token": token})
}

func (a *AuthController) PasswordResetFinalize(ctx router.Context) error {
	payload := new(FinalizePasswordResetMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if payload.Token == "" {
		payload.Token = ctx.Query("token", "")
	}

	var resp *ModificationRedeemedResponse
	payload.OnResponse = func(r *ModificationRedeemedResponse) {
		resp = r
	}

	if err := a.Commands.ResetFinalize.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("password reset finalize error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	// the new password invalidates any session minted before the reset
	a.Auther.ClearRefreshCookie(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"hook":    resp.Hook,
	})
}

func (a *AuthController) EmailChangeInit(ctx router.Context) error {
	payload := new(InitializeEmailChangeMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	accountID, err := a.sessionAccountID(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}
	payload.AccountID = accountID

	var resp *ModificationStartedResponse
	payload.OnResponse = func(r *ModificationStartedResponse) {
		resp = r
	}

	if err := a.Commands.EmailChange.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("email change init error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]any{
		"expires_at": resp.Modification.ExpiresAt,
	})
}

func (a *AuthController) EmailChangeRedeem(ctx router.Context) error {
	var resp *ModificationRedeemedResponse

	msg := RedeemEmailChangeMessage{
		Token: ctx.Query("token", ""),
		OnResponse: func(r *ModificationRedeemedResponse) {
			resp = r
		},
	}

	if err := a.Commands.EmailRedeem.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("email change redemption error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	if resp.Hook != "" {
		return ctx.Redirect(resp.Hook, router.StatusSeeOther)
	}

	return ctx.JSON(router.StatusOK, resp.Account)
}

func (a *AuthController) PasswordChangeInit(ctx router.Context) error {
	payload := new(InitializePasswordChangeMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	accountID, err := a.sessionAccountID(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}
	payload.AccountID = accountID

	var resp *ModificationStartedResponse
	payload.OnResponse = func(r *ModificationStartedResponse) {
		resp = r
	}

	if err := a.Commands.PasswordChange.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("password change init error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]any{
		"expires_at": resp.Modification.ExpiresAt,
	})
}

func (a *AuthController) PasswordChangeRedeem(ctx router.Context) error {
	var resp *ModificationRedeemedResponse

	msg := RedeemPasswordChangeMessage{
		Token: ctx.Query("token", ""),
		OnResponse: func(r *ModificationRedeemedResponse) {
			resp = r
		},
	}

	if err := a.Commands.PasswordRedeem.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("password change redemption error: %v", err)
		return a.Auther.ErrorHandler(ctx, err)
	}

	if resp.Hook != "" {
		return ctx.Redirect(resp.Hook, router.StatusSeeOther)
	}

	return ctx.JSON(router.StatusOK, resp.Account)
}

func (a *AuthController) SystemState(ctx router.Context) error {
	settings, err := a.Settings.Current(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"registration_view":   settings.RegistrationView,
		"show_privacy_policy": settings.ShowPrivacyPolicy,
		"privacy_policy_url":  settings.PrivacyPolicyURL,
	})
}

func (a *AuthController) RegistrationViewEnabled(ctx router.Context) error {
	settings, err := a.Settings.Current(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"enabled": settings.RegistrationView,
	})
}

func (a *AuthController) SystemHooks(ctx router.Context) error {
	settings, err := a.Settings.Current(ctx.Context())
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, settings.Hooks)
}

func (a *AuthController) sessionAccountID(ctx router.Context) (uuid.UUID, error) {
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
