package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Operational
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// OAuth connect flow
	RouteConnect  = "/oauth2/connect/{tenantID}"
	RouteCallback = "/oauth2/callback"

	// Company API
	RouteCompanies          = "/api/companies"
	RouteCompany            = "/api/companies/{tenantID}"
	RouteCompanyRefresh     = "/api/companies/{tenantID}/refresh"
	RouteCompanyDisconnect  = "/api/companies/{tenantID}/disconnect"
	RouteCompanyFiles       = "/api/companies/{tenantID}/files"
	RouteCompanyFolders     = "/api/companies/{tenantID}/folders"
	RouteDisconnectAll      = "/api/disconnect-all"
)
