package query

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/metrics"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"
)

var aggregations = []string{global.MetricSum, global.MetricMin, global.MetricMax, global.MetricAvg, global.MetricTrimmedMean}

// Route handlers bound to one set of sources
type routes struct {
	ctx     context.Context
	sources Sources
	now     func() time.Time
}

func (rt *routes) data(responder http.ResponseWriter, request *http.Request) {
	if rt.sources.Search == nil {
		rt.fail(responder, http.StatusServiceUnavailable, "metric search is not available")
		return
	}
	selected, err := parseWindow(request.URL.Query(), rt.now())
	if err != nil {
		rt.fail(responder, http.StatusBadRequest, err.Error())
		return
	}

	found := rt.sources.Search(request.FormValue("name"), namespaceOf(request.PathValue("namespace")), selected.start, selected.end)
	rt.list(responder, found)
}

func (rt *routes) discover(responder http.ResponseWriter, request *http.Request) {
	if rt.sources.Discover == nil {
		rt.fail(responder, http.StatusServiceUnavailable, "metric discovery is not available")
		return
	}

	var kind metrics.MetricType
	if raw := request.FormValue("type"); raw != "" {
		kind = metrics.MetricType(strings.ToLower(raw))
		if kind != metrics.Counter && kind != metrics.Gauge && kind != metrics.Summary {
			rt.fail(responder, http.StatusBadRequest, "type must be counter, gauge or summary")
			return
		}
	}

	found := rt.sources.Discover(
		request.FormValue("name"),
		request.FormValue("description"),
		namespaceOf(request.PathValue("namespace")),
		request.FormValue("unit"),
		kind,
	)
	rt.list(responder, found)
}

func (rt *routes) aggregate(responder http.ResponseWriter, request *http.Request) {
	if rt.sources.Aggregate == nil {
		rt.fail(responder, http.StatusServiceUnavailable, "metric aggregation is not available")
		return
	}
	aggType := request.FormValue("aggregation")
	if !slices.Contains(aggregations, aggType) {
		rt.fail(responder, http.StatusBadRequest, "aggregation must be one of "+strings.Join(aggregations, ", "))
		return
	}
	name := request.FormValue("name")
	if name == "" {
		rt.fail(responder, http.StatusBadRequest, "aggregation needs a metric name")
		return
	}
	selected, err := parseWindow(request.URL.Query(), rt.now())
	if err != nil {
		rt.fail(responder, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := rt.sources.Aggregate(aggType, name, namespaceOf(request.PathValue("namespace")), selected.start, selected.end)
	if err != nil {
		rt.fail(responder, http.StatusNotFound, err.Error())
		return
	}
	rt.reply(responder, http.StatusOK, summary.Convert())
}

func (rt *routes) list(responder http.ResponseWriter, found []metrics.Metric) {
	if len(found) == 0 {
		rt.fail(responder, http.StatusNotFound, "no metrics matched")
		return
	}
	converted := make([]metrics.JMetric, 0, len(found))
	for _, metric := range found {
		converted = append(converted, metric.Convert())
	}
	rt.reply(responder, http.StatusOK, converted)
}

func (rt *routes) fail(responder http.ResponseWriter, status int, reason string) {
	rt.reply(responder, status, errorBody{Error: reason})
}

func (rt *routes) reply(responder http.ResponseWriter, status int, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		logctx.LogEvent(rt.ctx, global.VerbosityStandard, global.ErrorLog,
			"failed encoding metric query reply: %v\n", err)
		responder.WriteHeader(http.StatusInternalServerError)
		return
	}
	responder.Header().Set("Content-Type", "application/json")
	responder.WriteHeader(status)
	responder.Write(append(encoded, '\n'))
}
