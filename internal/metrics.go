package internal

import "expvar"

var (
	requestsTotal    = expvar.NewMap("pkghub_requests_total")
	authFailures     = expvar.NewMap("pkghub_auth_failures_total")
	parseErrors      = expvar.NewMap("pkghub_parse_errors_total")
	unknownEvents    = expvar.NewMap("pkghub_unknown_events_total")
	versionsImported = expvar.NewMap("pkghub_versions_imported_total")
	versionsDeleted  = expvar.NewMap("pkghub_versions_deleted_total")
	importErrors     = expvar.NewMap("pkghub_import_errors_total")
	publishErrors    = expvar.NewMap("pkghub_publish_errors_total")
)

func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

func IncAuthFailure(provider string) {
	authFailures.Add(provider, 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

func IncUnknownEvent(provider string) {
	unknownEvents.Add(provider, 1)
}

func IncVersionImported(provider string) {
	versionsImported.Add(provider, 1)
}

func IncVersionDeleted(provider string) {
	versionsDeleted.Add(provider, 1)
}

func IncImportError(provider string) {
	importErrors.Add(provider, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
