package authflow

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// RegisterAuthRoutes mounts the auth surface on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.VerifyCode, controller.VerifyCodeShow).
		SetName("verify-code.get")
	app.Post(controller.Routes.VerifyCode, controller.VerifyCodePost).
		SetName("verify-code.post")
	app.Post(fmt.Sprintf("%s/resend", controller.Routes.VerifyCode), controller.VerifyCodeResend).
		SetName("verify-code-resend.post")

	app.Get(controller.Routes.ProfileSetup, controller.ProfileSetupShow).
		SetName("profile-setup.get")
	app.Post(controller.Routes.ProfileSetup, controller.ProfileSetupPost).
		SetName("profile-setup.post")

	app.Get(controller.Routes.Dashboard, controller.DashboardShow).
		SetName("dashboard.get")
}

type AuthControllerViews struct {
	Login        string
	Register     string
	VerifyCode   string
	ProfileSetup string
	Dashboard    string
}

// AuthController serves the login, registration, verification and
// onboarding screens. Navigation follows Decide: every handler bounces the
// visitor to the route their state implies, with replace semantics.
type AuthController struct {
	Debug        bool
	Logger       Logger
	Routes       Routes
	Views        AuthControllerViews
	Provider     IdentityProvider
	Store        *SessionStore
	Setup        *ProfileSetupHandler
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes:       DefaultRoutes(),
		Views: AuthControllerViews{
			Login:        "login",
			Register:     "register",
			VerifyCode:   "verify_code",
			ProfileSetup: "profile_setup",
			Dashboard:    "dashboard",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in auth controller...")
	}

	if c.Store == nil {
		panic("Missing SessionStore in auth controller...")
	}

	return c
}

func WithControllerProvider(provider IdentityProvider) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Provider = provider
		return c
	}
}

func WithControllerStore(store *SessionStore) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Store = store
		return c
	}
}

func WithControllerSetupHandler(handler *ProfileSetupHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Setup = handler
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRoutes(routes Routes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Routes = routes
		return c
	}
}

// state resolves the route state for the current store snapshot.
func (a *AuthController) state() RouteState {
	snapshot := a.Store.Snapshot()
	return Decide(DecisionInput{
		HasSession: snapshot.Authenticated(),
		Profile:    snapshot.Profile,
	})
}

func (a *AuthController) targetFor(state RouteState) string {
	switch state {
	case RouteNeedsLogin:
		return a.Routes.Login
	case RouteNeedsProfileSetup:
		return a.Routes.ProfileSetup
	default:
		return a.Routes.Dashboard
	}
}

// redirectAuthenticated bounces a signed-in visitor off the auth forms.
func (a *AuthController) redirectAuthenticated(ctx router.Context) (bool, error) {
	state := a.state()
	if state == RouteNeedsLogin {
		return false, nil
	}
	return true, ctx.Redirect(a.targetFor(state), router.StatusSeeOther)
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	if done, err := a.redirectAuthenticated(ctx); done {
		return err
	}
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errors := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": err.Error(),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	if _, err := a.Provider.SignInWithPassword(ctx.Context(), payload.Email, payload.Password); err != nil {
		a.Logger.Error("sign-in failed: %v", err)
		errors["authentication"] = "Invalid email or password"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	return ctx.Redirect(a.targetFor(a.state()), router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	if err := a.Provider.SignOut(ctx.Context()); err != nil {
		a.Logger.Error("sign-out failed: %v", err)
	}
	return ctx.Redirect(a.Routes.Login, router.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	if done, err := a.redirectAuthenticated(ctx); done {
		return err
	}
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": SignUpPayload{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(func(value any) error {
				if value != r.Password {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"errors": formatValidationErrors(err),
			"record": payload,
		})
	}

	err := a.Provider.SignUp(ctx.Context(), SignUpPayload{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		a.Logger.Error("sign-up failed: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "We could not create your account",
		}).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"registration": "We could not create your account"},
			"record": payload,
		})
	}

	return ctx.Redirect(
		fmt.Sprintf("%s?email=%s", a.Routes.VerifyCode, payload.Email),
		router.StatusSeeOther,
	)
}

func (a *AuthController) VerifyCodeShow(ctx router.Context) error {
	return ctx.Render(a.Views.VerifyCode, router.ViewContext{
		"errors": map[string]string{},
		"email":  ctx.Query("email"),
	})
}

// VerifyCodePayload is the one-time code form
type VerifyCodePayload struct {
	Email string `form:"email" json:"email"`
	Code  string `form:"code" json:"code"`
}

func (r VerifyCodePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (a *AuthController) VerifyCodePost(ctx router.Context) error {
	payload := new(VerifyCodePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.VerifyCode, router.ViewContext{
			"errors": formatValidationErrors(err),
			"email":  payload.Email,
		})
	}

	if _, err := a.Provider.VerifyOneTimeCode(ctx.Context(), payload.Email, payload.Code); err != nil {
		a.Logger.Error("code verification failed: %v", err)
		message := "That code is not valid"
		if IsTokenExpiredError(err) || IsUserFacingAuthError(err) {
			message = err.Error()
		}
		return ctx.Render(a.Views.VerifyCode, router.ViewContext{
			"errors": map[string]string{"code": message},
			"email":  payload.Email,
		})
	}

	return ctx.Redirect(a.targetFor(a.state()), router.StatusSeeOther)
}

// ResendCodePayload asks for a fresh one-time code
type ResendCodePayload struct {
	Email string `form:"email" json:"email"`
}

func (a *AuthController) VerifyCodeResend(ctx router.Context) error {
	payload := new(ResendCodePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	email := payload.Email
	if email == "" {
		return ctx.Redirect(a.Routes.Register, router.StatusSeeOther)
	}

	if err := a.Provider.ResendOneTimeCode(ctx.Context(), email); err != nil {
		a.Logger.Error("code resend failed: %v", err)
	}

	return ctx.Redirect(
		fmt.Sprintf("%s?email=%s", a.Routes.VerifyCode, email),
		router.StatusSeeOther,
	)
}

func (a *AuthController) ProfileSetupShow(ctx router.Context) error {
	state := a.state()
	if state == RouteNeedsLogin {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	snapshot := a.Store.Snapshot()
	return ctx.Render(a.Views.ProfileSetup, router.ViewContext{
		"errors":  map[string]string{},
		"profile": snapshot.Profile,
	})
}

// ProfileSetupFormPayload is the onboarding form
type ProfileSetupFormPayload struct {
	FirstName   string `form:"first_name" json:"first_name"`
	LastName    string `form:"last_name" json:"last_name"`
	Phone       string `form:"phone_number" json:"phone_number"`
	CompanyName string `form:"company_name" json:"company_name"`
	AvatarURL   string `form:"avatar_url" json:"avatar_url"`
	LogoURL     string `form:"logo_url" json:"logo_url"`
}

func (a *AuthController) ProfileSetupPost(ctx router.Context) error {
	snapshot := a.Store.Snapshot()
	if !snapshot.Authenticated() {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	if a.Setup == nil {
		return a.ErrorHandler(ctx, fmt.Errorf("profile setup handler not configured"))
	}

	payload := new(ProfileSetupFormPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	userID, err := uuid.Parse(snapshot.User.ID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	err = a.Setup.Execute(ctx.Context(), ProfileSetupMessage{
		UserID:      userID,
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		Phone:       payload.Phone,
		CompanyName: payload.CompanyName,
		AvatarURL:   payload.AvatarURL,
		LogoURL:     payload.LogoURL,
	})
	if err != nil {
		a.Logger.Error("profile setup failed: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "We could not save your profile",
		}).Render(a.Views.ProfileSetup, router.ViewContext{
			"errors":  map[string]string{"profile": "We could not save your profile"},
			"profile": snapshot.Profile,
		})
	}

	return ctx.Redirect(a.Routes.Dashboard, router.StatusSeeOther)
}

func (a *AuthController) DashboardShow(ctx router.Context) error {
	state := a.state()
	if state != RouteDashboard {
		return ctx.Redirect(a.targetFor(state), router.StatusSeeOther)
	}

	snapshot := a.Store.Snapshot()
	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"profile": snapshot.Profile,
		"user":    snapshot.User,
	})
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}

func formatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
