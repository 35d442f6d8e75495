// Local only HTTP endpoint for discovering and reading the daemon's metrics
package query

import (
	"bytes"
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

//go:embed help.html
var helpSource string

var helpTemplate = template.Must(template.New("help").Parse(helpSource))

// Namespaces listed on the help page
var knownNamespaces = []string{
	global.NSServer,
	global.NSServer + "/" + global.NSOctopus,
	global.NSServer + "/" + global.NSPump + "/<peer>/" + global.NSTransport,
	global.NSServer + "/" + global.NSTransfer,
}

// Builds the request router. address only appears on the help page.
func NewHandler(ctx context.Context, address string, sources Sources) (handler http.Handler, err error) {
	var page bytes.Buffer
	err = helpTemplate.Execute(&page, helpFields{
		Address:         address,
		DataPath:        global.DataPath,
		DiscoveryPath:   global.DiscoveryPath,
		AggregationPath: global.AggregationPath,
		Aggregations:    aggregations,
		Namespaces:      knownNamespaces,
	})
	if err != nil {
		err = fmt.Errorf("failed rendering metric help page: %w", err)
		return
	}
	helpPage := page.Bytes()

	rt := &routes{ctx: ctx, sources: sources, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(responder http.ResponseWriter, request *http.Request) {
		responder.Header().Set("Content-Type", "text/html; charset=utf-8")
		responder.Write(helpPage)
	})
	mux.HandleFunc("GET "+global.DataPath+"{namespace...}", rt.data)
	mux.HandleFunc("GET "+global.DiscoveryPath+"{namespace...}", rt.discover)
	mux.HandleFunc("GET "+global.AggregationPath+"{namespace...}", rt.aggregate)
	handler = mux
	return
}

// Binds the local query port so a taken port fails startup instead of the later serve
func SetupListener(ctx context.Context, port int, sources Sources) (endpoint *Endpoint, err error) {
	address := net.JoinHostPort(global.HTTPListenAddr, strconv.Itoa(port))

	handler, err := NewHandler(ctx, address, sources)
	if err != nil {
		return
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		err = fmt.Errorf("failed binding metric query server to %s: %w", address, err)
		return
	}

	endpoint = &Endpoint{
		Server: &http.Server{
			Addr:         listener.Addr().String(),
			Handler:      handler,
			ReadTimeout:  global.HTTPReadTimeout,
			WriteTimeout: global.HTTPWriteTimeout,
			IdleTimeout:  global.HTTPIdleTimeout,
			ErrorLog:     log.New(logWriter{ctx: ctx}, "", 0),
		},
		listener: listener,
	}
	return
}

// Serves until the endpoint is shut down
func (endpoint *Endpoint) Serve(ctx context.Context) {
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Metric query server listening on http://%s/\n", endpoint.Addr)

	err := endpoint.Server.Serve(endpoint.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"metric query server stopped: %v\n", err)
	}
}

// Routes net/http's own error log into the context logger
type logWriter struct {
	ctx context.Context
}

func (writer logWriter) Write(line []byte) (n int, err error) {
	n = len(line)
	if text := strings.TrimSpace(string(line)); text != "" {
		logctx.LogEvent(writer.ctx, global.VerbosityStandard, global.WarnLog, "metric query server: %s\n", text)
	}
	return
}

// Stops serving. The listener is closed even when Serve never ran.
func (endpoint *Endpoint) Shutdown(ctx context.Context) (err error) {
	err = endpoint.Server.Shutdown(ctx)
	endpoint.listener.Close()
	return
}
