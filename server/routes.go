package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Operational
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	// OAuth connect flow, reached by the tenant's browser
	s.RegisterRouteHandler("GET "+RouteConnect, ChainMiddleware(s.ConnectHandler(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.BrowserMiddleware()...))

	// Company API
	s.RegisterRouteHandler("GET "+RouteCompanies, ChainMiddleware(s.CompaniesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCompany, ChainMiddleware(s.CompanyHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCompanyRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCompanyDisconnect, ChainMiddleware(s.DisconnectHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteDisconnectAll, ChainMiddleware(s.DisconnectAllHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCompanyFiles, ChainMiddleware(s.ListFilesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCompanyFolders, ChainMiddleware(s.CreateFolderHandler(), s.APIMiddleware()...))

	// CORS preflight for the API
	s.RegisterRouteFunc("OPTIONS /api/", ChainMiddleware(http.NotFound, s.CorsMiddleware))
}
