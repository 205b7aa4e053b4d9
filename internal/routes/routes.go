package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atelierhq/atelier-api/internal/authz"
	"github.com/atelierhq/atelier-api/internal/handlers"
	"github.com/atelierhq/atelier-api/internal/models"
)

// NewRouter sets up the API routes.
func NewRouter(
	auth *handlers.AuthHandler,
	leads *handlers.LeadHandler,
	requests *handlers.RequestHandler,
	invoices *handlers.InvoiceHandler,
	plans *handlers.PlanHandler,
	changes *handlers.ChangeRequestHandler,
	orgs *handlers.OrganizationHandler,
	invites *handlers.InviteHandler,
	notifications *handlers.NotificationHandler,
	reports *handlers.ReportHandler,
	resources *handlers.ResourceHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public endpoints: auth, the website lead intake form and invite
	// acceptance reached from an email link.
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)
	router.HandleFunc("/api/intake/leads", leads.Intake).Methods(http.MethodPost)
	router.HandleFunc("/api/invites/{token}", invites.PreviewInvite).Methods(http.MethodGet)
	router.HandleFunc("/api/invites/{token}/accept", invites.AcceptInvite).Methods(http.MethodPost)

	// Everything below requires a valid token.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	staff := authz.RequireRole(models.RoleStaff)

	// Pipeline board. Staff only: clients never see other leads.
	pipeline := api.NewRoute().Subrouter()
	pipeline.Use(staff)
	pipeline.HandleFunc("/pipeline", leads.Board).Methods(http.MethodGet)
	pipeline.HandleFunc("/leads/{id}", leads.Get).Methods(http.MethodGet)
	pipeline.HandleFunc("/leads/{id}", leads.Update).Methods(http.MethodPatch)
	pipeline.HandleFunc("/leads/{id}", leads.Delete).Methods(http.MethodDelete)
	pipeline.HandleFunc("/leads/{id}/move", leads.MoveStage).Methods(http.MethodPost)
	pipeline.HandleFunc("/leads/{id}/reorder", leads.Reorder).Methods(http.MethodPost)

	// Project requests. Clients manage their own; review moves are staff.
	api.HandleFunc("/requests", requests.Create).Methods(http.MethodPost)
	api.HandleFunc("/requests", requests.List).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", requests.Get).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", requests.Edit).Methods(http.MethodPatch)
	api.HandleFunc("/requests/{id}", requests.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/requests/{id}/submit", requests.Submit).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/timeline", requests.Timeline).Methods(http.MethodGet)
	api.Handle("/requests/{id}/status",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(requests.Transition))).Methods(http.MethodPost)
	api.Handle("/requests/{id}/project",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(requests.AttachProject))).Methods(http.MethodPost)

	// Invoice ledger. Clients read their own invoices; all writes are staff.
	api.HandleFunc("/invoices", invoices.List).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}", invoices.Get).Methods(http.MethodGet)
	billing := api.NewRoute().Subrouter()
	billing.Use(staff)
	billing.HandleFunc("/invoices", invoices.Create).Methods(http.MethodPost)
	billing.HandleFunc("/invoices/{id}/items", invoices.ReplaceItems).Methods(http.MethodPut)
	billing.HandleFunc("/invoices/{id}/send", invoices.Send).Methods(http.MethodPost)
	billing.HandleFunc("/invoices/{id}/pay", invoices.Pay).Methods(http.MethodPost)
	billing.HandleFunc("/invoices/{id}/cancel", invoices.Cancel).Methods(http.MethodPost)
	billing.HandleFunc("/invoices/{id}/remind", invoices.Remind).Methods(http.MethodPost)

	// Maintenance plans and hour packs.
	api.HandleFunc("/plans/{id}", plans.Get).Methods(http.MethodGet)
	api.HandleFunc("/plans/{id}/packs", plans.ListPacks).Methods(http.MethodGet)
	api.HandleFunc("/plans/{id}/usage", plans.Usage).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectID}/plan", plans.GetByProject).Methods(http.MethodGet)
	subscriptions := api.NewRoute().Subrouter()
	subscriptions.Use(staff)
	subscriptions.HandleFunc("/projects/{projectID}/plan", plans.Create).Methods(http.MethodPost)
	subscriptions.HandleFunc("/plans/{id}/pause", plans.Pause).Methods(http.MethodPost)
	subscriptions.HandleFunc("/plans/{id}/resume", plans.Resume).Methods(http.MethodPost)
	subscriptions.HandleFunc("/plans/{id}/cancel", plans.Cancel).Methods(http.MethodPost)
	subscriptions.HandleFunc("/plans/{id}/packs", plans.CreatePack).Methods(http.MethodPost)

	// Change requests.
	api.HandleFunc("/change-requests", changes.Create).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}", changes.Get).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectID}/change-requests", changes.ListByProject).Methods(http.MethodGet)
	api.Handle("/change-requests/{id}/status",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(changes.Transition))).Methods(http.MethodPost)
	api.Handle("/change-requests/{id}/complete",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(changes.Complete))).Methods(http.MethodPost)

	// Notification feed.
	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", notifications.MarkRead).Methods(http.MethodPost)

	// Reporting.
	api.Handle("/reports/stats",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(reports.Stats))).Methods(http.MethodGet)

	// Organizations and portal invites.
	api.Handle("/organizations",
		authz.RequireRoleHandler(models.RoleAdmin, http.HandlerFunc(orgs.Create))).Methods(http.MethodPost)
	api.Handle("/organizations/{orgID}",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(orgs.Get))).Methods(http.MethodGet)
	api.Handle("/organizations/{orgID}/invites",
		authz.RequireRoleHandler(models.RoleStaff, http.HandlerFunc(invites.CreateInvite))).Methods(http.MethodPost)

	// Client portal resource collections.
	api.HandleFunc("/resources/{collection}", resources.ListByCollection).Methods(http.MethodGet)
	portal := api.NewRoute().Subrouter()
	portal.Use(staff)
	portal.HandleFunc("/resources", resources.Create).Methods(http.MethodPost)
	portal.HandleFunc("/resources/{id}/reorder", resources.Reorder).Methods(http.MethodPost)
	portal.HandleFunc("/resources/{id}", resources.Delete).Methods(http.MethodDelete)

	return router
}
