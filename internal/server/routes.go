package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(reportHandler *ReportService, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/reports/", reportHandler.GetReport)
	mux.HandleFunc("/experiments", reportHandler.GetExperiments)
	mux.HandleFunc("/orphans", reportHandler.GetOrphans)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return mux
}
